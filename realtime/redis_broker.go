package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker implements Broker on Redis pub/sub so login events reach the
// desktop's server regardless of which process handled the confirmation.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker creates a new RedisBroker. The prefix namespaces channel
// keys so multiple deployments can share one Redis.
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) redisChannel(channel string) string {
	if b.prefix == "" {
		return channel
	}
	return fmt.Sprintf("%s:%s", b.prefix, channel)
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.redisChannel(event.Channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.redisChannel(channel))

	// Force the subscription onto the wire before returning, otherwise an
	// event published immediately after Subscribe could be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to redis channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, 8),
	}
	go sub.pump(channel)

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
}

func (s *redisSubscription) pump(channel string) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		s.offer(channel, msg.Payload)
	}
}

// offer decodes and enqueues one message without ever blocking the pump: a
// subscriber that stopped draining loses events rather than pinning this
// goroutine for the life of the process. The desktop self-heals through its
// session refresh.
func (s *redisSubscription) offer(channel, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable event")
		return
	}

	select {
	case s.events <- event:
	default:
		log.Warn().Str("channel", channel).Msg("dropping event for slow subscriber")
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

var _ Broker = (*RedisBroker)(nil)
