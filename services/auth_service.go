package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
)

// PasswordHasher abstracts the password hashing scheme.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// AuthService is the local authentication oracle: it backs the mobile
// device's own password login, the step that must already have happened
// before the device may confirm a QR session.
type AuthService struct {
	users  domain.UserRepository
	hasher PasswordHasher
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(users domain.UserRepository, hasher PasswordHasher) *AuthService {
	return &AuthService{users: users, hasher: hasher}
}

// Login verifies email+password and returns the matching user. Unknown
// email and wrong password collapse into one error so the response does not
// leak which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, serrors.ErrUserNotFound) {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		log.Ctx(ctx).Debug().Str("user_id", user.ID).Msg("password mismatch")
		return nil, serrors.ErrInvalidCredentials
	}

	return user, nil
}

// Register creates an account with a hashed password. Used by seeding and
// the account-management collaborator, not by the handshake itself.
func (s *AuthService) Register(ctx context.Context, user *domain.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	return s.users.CreateUser(ctx, user)
}
