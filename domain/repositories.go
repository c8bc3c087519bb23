package domain

import (
	"context"
	"time"
)

// LoginSessionRepository defines storage for ephemeral login sessions.
// Implementations must make Consume an atomic conditional update: of any
// number of concurrent Consume calls for the same code, exactly one may
// observe status == pending and win.
type LoginSessionRepository interface {
	// Save persists a new session record. ErrSessionCodeTaken is returned
	// when a non-expired session with the same code already exists.
	Save(ctx context.Context, session *LoginSession) error

	// GetByCode retrieves a session by its QR code value.
	// Returns ErrSessionNotFound when no record exists.
	GetByCode(ctx context.Context, code string) (*LoginSession, error)

	// Consume atomically transitions a pending, non-expired session to
	// consumed and binds userID to it. Returns ErrSessionNotFound when no
	// record matched the condition; the caller resolves that into
	// not-found, expired or replayed by re-reading.
	Consume(ctx context.Context, code, userID string, now time.Time) (*LoginSession, error)

	// MarkExpired writes back the expired status discovered by a lazy
	// expiry check. Losing this write is harmless, the TTL comparison on
	// read remains authoritative.
	MarkExpired(ctx context.Context, code string) error

	// DeleteExpired reclaims storage held by sessions past their TTL.
	DeleteExpired(ctx context.Context, now time.Time) error
}

// UserRepository is the identity collaborator: it supplies the role and
// display name bound into issued credentials.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
}
