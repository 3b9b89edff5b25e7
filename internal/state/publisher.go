package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatusChangeChannel is the Redis pub/sub channel for status changes
	StatusChangeChannel = "dagsched:status_changes"

	publishTimeout = 5 * time.Second
)

// RedisPublisher publishes status change events to Redis pub/sub
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a new Redis event publisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: StatusChangeChannel,
	}
}

// Publish publishes a status transition event to Redis
func (p *RedisPublisher) Publish(ctx context.Context, event TransitionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	return nil
}

// Subscribe delivers status change events to handler until ctx is done.
// Undecodable messages and handler errors do not stop the subscription
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(TransitionEvent) error) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				continue
			}
			_ = handler(event)
		}
	}
}

// DecodeEvent decodes a JSON-encoded TransitionEvent
func DecodeEvent(data []byte) (TransitionEvent, error) {
	var event TransitionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return TransitionEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

// MultiPublisher publishes to multiple publishers
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher creates a publisher that publishes to multiple publishers
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	return &MultiPublisher{
		publishers: publishers,
	}
}

// Publish publishes to every publisher, even when an earlier one fails,
// and returns the joined errors
func (p *MultiPublisher) Publish(ctx context.Context, event TransitionEvent) error {
	var errs []error
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
