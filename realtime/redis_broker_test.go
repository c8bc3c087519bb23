package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisSubscriptionOfferNeverBlocks(t *testing.T) {
	sub := &redisSubscription{events: make(chan Event, 2)}
	payload := `{"channel":"private-a","event":"login-event","data":{"userId":"u1"}}`

	sub.offer("private-a", payload)
	sub.offer("private-a", payload)

	// Nobody is draining and the buffer is full; the next message must be
	// dropped, not block the pump.
	done := make(chan struct{})
	go func() {
		sub.offer("private-a", payload)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("offer blocked on a full buffer")
	}
	assert.Len(t, sub.events, 2)
}

func TestRedisSubscriptionOfferIgnoresBadPayload(t *testing.T) {
	sub := &redisSubscription{events: make(chan Event, 2)}

	sub.offer("private-a", "{not json")
	assert.Empty(t, sub.events)
}
