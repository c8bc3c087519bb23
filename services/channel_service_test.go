package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/services"
)

func TestChannelAuthorizeAndVerify(t *testing.T) {
	a := services.NewChannelAuthorizer("app-key", "channel-secret")

	grant, err := a.Authorize("socket-1", "private-abc123")
	require.NoError(t, err)
	assert.Equal(t, "socket-1", grant.SocketID)
	assert.NotEmpty(t, grant.Auth)

	assert.NoError(t, a.VerifyGrant("socket-1", "private-abc123", grant.Auth))
}

func TestChannelAuthorizeRejectsNonPrivate(t *testing.T) {
	a := services.NewChannelAuthorizer("app-key", "channel-secret")

	_, err := a.Authorize("socket-1", "public-lobby")
	assert.ErrorIs(t, err, serrors.ErrChannelUnauthorized)

	_, err = a.Authorize("socket-1", "private-")
	assert.ErrorIs(t, err, serrors.ErrChannelUnauthorized)

	_, err = a.Authorize("", "private-abc123")
	assert.ErrorIs(t, err, serrors.ErrChannelUnauthorized)
}

func TestChannelGrantNotTransferable(t *testing.T) {
	a := services.NewChannelAuthorizer("app-key", "channel-secret")

	grant, err := a.Authorize("socket-1", "private-abc123")
	require.NoError(t, err)

	// A grant is bound to both the socket and the channel.
	assert.ErrorIs(t, a.VerifyGrant("socket-2", "private-abc123", grant.Auth), serrors.ErrChannelUnauthorized)
	assert.ErrorIs(t, a.VerifyGrant("socket-1", "private-other", grant.Auth), serrors.ErrChannelUnauthorized)
	assert.ErrorIs(t, a.VerifyGrant("socket-1", "private-abc123", ""), serrors.ErrChannelUnauthorized)
}

func TestChannelGrantSecretMatters(t *testing.T) {
	a := services.NewChannelAuthorizer("app-key", "channel-secret")
	b := services.NewChannelAuthorizer("app-key", "different-secret")

	grant, err := a.Authorize("socket-1", "private-abc123")
	require.NoError(t, err)

	assert.ErrorIs(t, b.VerifyGrant("socket-1", "private-abc123", grant.Auth), serrors.ErrChannelUnauthorized)
}
