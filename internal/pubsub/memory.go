package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/model"
)

// DefaultCleanupInterval is how often Run reaps hubs with no subscribers
const DefaultCleanupInterval = time.Minute

// hub fans messages for a single topic out to its subscribers. Membership
// changes happen under mu on the caller's goroutine; the hub goroutine
// only broadcasts.
type hub struct {
	topic       string
	subscribers map[*subscriber]bool
	mu          sync.RWMutex
	logger      *slog.Logger

	broadcast chan Message
	done      chan struct{}
}

func newHub(topic string, logger *slog.Logger) *hub {
	return &hub{
		topic:       topic,
		subscribers: make(map[*subscriber]bool),
		logger:      logger.With(slog.String("topic", topic)),
		// Unbuffered so that a returned Publish has reached every mailbox
		broadcast: make(chan Message),
		done:      make(chan struct{}),
	}
}

func (h *hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = true
	count := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug("subscriber registered", slog.Int("total_subscribers", count))
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	count := len(h.subscribers)
	h.mu.Unlock()
	sub.close()
	h.logger.Debug("subscriber unregistered", slog.Int("total_subscribers", count))
}

func (h *hub) run() {
	h.logger.Debug("topic hub started")
	for {
		select {
		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.done:
			h.mu.Lock()
			count := len(h.subscribers)
			for sub := range h.subscribers {
				sub.fail()
				delete(h.subscribers, sub)
			}
			h.mu.Unlock()
			h.logger.Debug("topic hub stopped", slog.Int("disconnected_subscribers", count))
			return
		}
	}
}

func (h *hub) deliver(msg Message) {
	var failed []*subscriber
	h.mu.RLock()
	for sub := range h.subscribers {
		if !sub.enqueue(msg) {
			failed = append(failed, sub)
		}
	}
	total := len(h.subscribers)
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range failed {
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()
	h.logger.Warn("broadcast dropped lagging subscribers",
		slog.Int("sent", total-len(failed)),
		slog.Int("dropped", len(failed)))
}

func (h *hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// MemoryRouter is an in-process Router with one hub goroutine per topic
type MemoryRouter struct {
	hubs   map[string]*hub
	mu     sync.RWMutex
	clock  clock.Clock
	logger *slog.Logger
	closed bool
}

// Ensure MemoryRouter implements Router
var _ Router = (*MemoryRouter)(nil)

// NewMemoryRouter creates an empty in-process router
func NewMemoryRouter(clk clock.Clock, logger *slog.Logger) *MemoryRouter {
	return &MemoryRouter{
		hubs:   make(map[string]*hub),
		clock:  clk,
		logger: logger.With(slog.String("component", "pubsub")),
	}
}

// Publish delivers the event to the topic's current subscribers. A topic
// with no subscribers silently discards it.
func (r *MemoryRouter) Publish(ctx context.Context, topic string, event model.Event) error {
	msg, err := NewMessage(topic, event, r.clock.Now())
	if err != nil {
		return err
	}

	r.mu.RLock()
	h := r.hubs[topic]
	r.mu.RUnlock()
	if h == nil {
		return nil
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		// Reaped after its last subscriber left
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts delivering the topic's messages to handler
func (r *MemoryRouter) Subscribe(topic string, handler Handler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRouterClosed
	}

	h, ok := r.hubs[topic]
	if !ok {
		h = newHub(topic, r.logger)
		r.hubs[topic] = h
		go h.run()
	}

	sub := newSubscriber(topic, handler, r.logger)
	// Counted before the router lock is released, so the reaper cannot
	// stop the hub under a subscription it has just handed out
	h.add(sub)

	return &memorySubscription{hub: h, sub: sub}, nil
}

// CleanupEmptyHubs stops and removes hubs with no subscribers
func (r *MemoryRouter) CleanupEmptyHubs() {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for topic, h := range r.hubs {
		if h.subscriberCount() == 0 {
			close(h.done)
			delete(r.hubs, topic)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("empty topic hubs cleaned up", slog.Int("removed", removed))
	}
}

// HubCount returns the number of live topic hubs
func (r *MemoryRouter) HubCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hubs)
}

// Run reaps empty hubs every interval until ctx is cancelled
func (r *MemoryRouter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.CleanupEmptyHubs()
		case <-ctx.Done():
			return
		}
	}
}

// Close stops every hub and its subscribers
func (r *MemoryRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for topic, h := range r.hubs {
		close(h.done)
		delete(r.hubs, topic)
	}
	return nil
}

type memorySubscription struct {
	hub  *hub
	sub  *subscriber
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s.sub) })
}

func (s *memorySubscription) Lost() <-chan struct{} {
	return s.sub.lost
}
