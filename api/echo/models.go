package echo

import "time"

// CreateSessionResponse carries the value the desktop renders into the QR
// code together with its TTL, so the client can refresh before expiry.
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ValidateSessionRequest struct {
	SessionID string `json:"session_id"`
}

type ValidateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConfirmSessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// IssueTokenRequest requires the session id alongside the user id: the
// completion exchange only succeeds for the user actually bound to a
// consumed session, so possession of a user id alone mints nothing.
type IssueTokenRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type IssueTokenResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type VerifyTokenResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Elevated    bool      `json:"elevated"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type ChannelAuthRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

type ChannelAuthResponse struct {
	Auth string `json:"auth"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}
