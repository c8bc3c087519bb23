package domain

import "time"

// LoginSessionStatus represents the status of a cross-device login attempt.
type LoginSessionStatus string

const (
	LoginSessionStatusPending   LoginSessionStatus = "pending"
	LoginSessionStatusValidated LoginSessionStatus = "validated"
	LoginSessionStatusExpired   LoginSessionStatus = "expired"
	LoginSessionStatusConsumed  LoginSessionStatus = "consumed"
)

// LoginSession binds a displayed QR code to a pending cross-device login
// attempt. Code is the high-entropy value rendered into the QR payload and
// doubles as the private channel suffix. Status only moves forward:
// pending -> consumed (one mobile confirmation) or pending -> expired.
type LoginSession struct {
	ID          string             `bson:"_id" json:"id"`
	Code        string             `bson:"code" json:"code"`
	Status      LoginSessionStatus `bson:"status" json:"status"`
	BoundUserID string             `bson:"bound_user_id,omitempty" json:"bound_user_id,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time          `bson:"expires_at" json:"expires_at"`
}

// ExpiredAt reports whether the session's TTL has passed at the given instant.
func (s *LoginSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ChannelName returns the private channel the desktop subscribes to for
// this session's login event.
func (s *LoginSession) ChannelName() string {
	return PrivateChannelName(s.Code)
}

// PrivateChannelName builds the per-session channel name from a session code.
func PrivateChannelName(code string) string {
	return "private-" + code
}
