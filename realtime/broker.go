package realtime

import (
	"context"
	"encoding/json"
)

// EventLogin is the event delivered on a session's private channel once a
// mobile device has confirmed the login.
const EventLogin = "login-event"

// Event is the JSON envelope carried over a channel. Data stays raw so the
// broker does not need to know every payload shape.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// LoginEventData is the payload of EventLogin.
type LoginEventData struct {
	UserID string `json:"userId"`
}

// NewLoginEvent builds the login event for a session channel.
func NewLoginEvent(channel, userID string) (Event, error) {
	data, err := json.Marshal(LoginEventData{UserID: userID})
	if err != nil {
		return Event{}, err
	}
	return Event{Channel: channel, Name: EventLogin, Data: data}, nil
}

// Subscription is a live binding to one channel. Close tears the binding
// down; no events are delivered afterwards.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker is the at-least-once pub/sub primitive the handshake synchronizes
// over. Delivery guarantees are the broker's concern; consumers must be
// idempotent against duplicates.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
