package domain

import "time"

// Credential is the verified claim set carried by a signed bearer token.
// It asserts exactly one role at a time. Elevated is set only when the
// credential was minted through the QR step-up handshake, never by plain
// password login.
type Credential struct {
	TokenID     string    `json:"jti"`
	UserID      string    `json:"sub"`
	DisplayName string    `json:"name"`
	Role        string    `json:"role"`
	Elevated    bool      `json:"elevated,omitempty"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// ChannelGrant pairs a transport connection with one session-scoped private
// channel. It is ephemeral: valid only for the lifetime of that connection
// and never persisted.
type ChannelGrant struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
	Auth        string `json:"auth"`
}
