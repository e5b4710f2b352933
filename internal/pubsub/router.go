// Package pubsub delivers outbound notices to the current subscribers of
// named topics. Delivery is fire-and-forget: a publish never reports which
// subscribers received it, and late subscribers see no earlier messages.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcoot/chessrelay/internal/model"
)

// Message is one published notice as seen by subscribers
type Message struct {
	Topic       string          `json:"topic"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewMessage encodes an event for a topic
func NewMessage(topic string, event model.Event, at time.Time) (Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", event.Kind(), err)
	}
	return Message{
		Topic:       topic,
		Kind:        event.Kind(),
		Payload:     payload,
		PublishedAt: at,
	}, nil
}

// Handler receives messages for a subscription. Handlers for one
// subscription are called sequentially in publish order.
type Handler func(Message)

// Subscription is an active interest in a topic
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is harmless.
	Unsubscribe()

	// Lost is closed when the router ends the subscription itself, either
	// because the subscriber fell too far behind or because the router
	// shut down. Messages after that point are not delivered, so the
	// owner should drop its client and let it resync.
	Lost() <-chan struct{}
}

// Router publishes events to topics and fans them out to subscribers
type Router interface {
	Publish(ctx context.Context, topic string, event model.Event) error
	Subscribe(topic string, handler Handler) (Subscription, error)
	Close() error
}

// ErrRouterClosed is returned when subscribing to a closed router
var ErrRouterClosed = errors.New("pubsub router closed")
