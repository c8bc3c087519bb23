package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
)

// privateChannelPrefix gates which channels can be granted at all; only
// session-scoped private channels carry login events.
const privateChannelPrefix = "private-"

// ChannelAuthorizer gates subscription to per-session private channels.
// Possession of the channel name (which embeds the unguessable session
// code) is the proof of legitimacy; the authorizer binds that name to one
// transport connection with a keyed MAC. It holds no domain state and is
// re-run on every reconnect.
type ChannelAuthorizer struct {
	appKey string
	secret []byte
}

// NewChannelAuthorizer creates a new ChannelAuthorizer.
func NewChannelAuthorizer(appKey, secretKey string) *ChannelAuthorizer {
	return &ChannelAuthorizer{
		appKey: appKey,
		secret: []byte(secretKey),
	}
}

// Authorize issues a grant binding socketID to channelName. The auth string
// follows the key:hex(HMAC-SHA256(secret, socketID:channelName)) shape so
// existing private-channel clients interoperate.
func (a *ChannelAuthorizer) Authorize(socketID, channelName string) (*domain.ChannelGrant, error) {
	if socketID == "" {
		return nil, serrors.ErrChannelUnauthorized
	}
	if !strings.HasPrefix(channelName, privateChannelPrefix) ||
		len(channelName) == len(privateChannelPrefix) {
		return nil, serrors.ErrChannelUnauthorized
	}

	return &domain.ChannelGrant{
		SocketID:    socketID,
		ChannelName: channelName,
		Auth:        a.signature(socketID, channelName),
	}, nil
}

// VerifyGrant checks that auth is a valid grant for the socket/channel pair.
func (a *ChannelAuthorizer) VerifyGrant(socketID, channelName, auth string) error {
	if socketID == "" || auth == "" {
		return serrors.ErrChannelUnauthorized
	}
	if !strings.HasPrefix(channelName, privateChannelPrefix) {
		return serrors.ErrChannelUnauthorized
	}

	expected := a.signature(socketID, channelName)
	if !hmac.Equal([]byte(expected), []byte(auth)) {
		return serrors.ErrChannelUnauthorized
	}

	return nil
}

func (a *ChannelAuthorizer) signature(socketID, channelName string) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%s", socketID, channelName)

	return fmt.Sprintf("%s:%s", a.appKey, hex.EncodeToString(mac.Sum(nil)))
}
