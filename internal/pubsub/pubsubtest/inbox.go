// Package pubsubtest provides helpers for asserting on published messages
package pubsubtest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcoot/chessrelay/internal/pubsub"
)

// WaitTimeout bounds how long Inbox waits for deliveries
const WaitTimeout = 2 * time.Second

// Inbox records every message delivered to one subscription
type Inbox struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

// Subscribe attaches a new Inbox to topic. The subscription is released
// when the test ends.
func Subscribe(t testing.TB, router pubsub.Router, topic string) *Inbox {
	t.Helper()
	inbox := &Inbox{}
	sub, err := router.Subscribe(topic, inbox.handle)
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	return inbox
}

func (b *Inbox) handle(msg pubsub.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

// Messages returns a copy of everything received so far
func (b *Inbox) Messages() []pubsub.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pubsub.Message(nil), b.messages...)
}

// WaitFor blocks until at least n messages have arrived and returns them
func (b *Inbox) WaitFor(t testing.TB, n int) []pubsub.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(b.Messages()) >= n
	}, WaitTimeout, 5*time.Millisecond)
	return b.Messages()
}

// Last waits for the first message and returns the most recent one
func (b *Inbox) Last(t testing.TB) pubsub.Message {
	t.Helper()
	msgs := b.WaitFor(t, 1)
	return msgs[len(msgs)-1]
}

// Decode unmarshals a message payload into v
func Decode[T any](t testing.TB, msg pubsub.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}
