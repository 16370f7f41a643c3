package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/updownbot/internal/domain"
)

const (
	// eventChannel is the Pub/Sub channel live subscribers (the notifier)
	// listen on.
	eventChannel = "updownbot:events"

	// eventStream keeps a capped replayable history of the same events.
	eventStream = "updownbot:events:stream"

	// streamMaxLen is the approximate stream cap, enforced via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
)

// EventBus implements domain.EventBus: events go out on Pub/Sub for live
// delivery and into a capped stream for later inspection.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

var _ domain.EventBus = (*EventBus)(nil)

// PublishEvent fans the event out to the live channel and the stream. A
// stream append failure does not fail the publish; live delivery is the
// priority.
func (b *EventBus) PublishEvent(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	if err := b.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish event: %w", err)
	}

	_ = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"type":    string(event.Type),
			"payload": string(payload),
		},
	}).Err()

	return nil
}

// SubscribeEvents returns a channel of decoded events. The subscription
// closes when the context is cancelled; undecodable payloads are dropped.
func (b *EventBus) SubscribeEvents(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
