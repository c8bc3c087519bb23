package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/internal/auth"
	"go.curalink.io/qrlogin/memory"
	"go.curalink.io/qrlogin/services"
)

func TestAuthServiceLogin(t *testing.T) {
	users := memory.NewUserStore()
	svc := services.NewAuthService(users, auth.NewBcryptPasswordHasher(4))
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, &domain.User{
		ID: "user-1", Email: "doc@example.com", DisplayName: "Dr. Example", Role: domain.RoleDoctor,
	}, "hunter2-but-long"))

	user, err := svc.Login(ctx, "doc@example.com", "hunter2-but-long")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	// Wrong password and unknown email yield the same error.
	_, err = svc.Login(ctx, "doc@example.com", "wrong")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "hunter2-but-long")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
}
