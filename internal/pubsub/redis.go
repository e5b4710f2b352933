package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/model"
)

const (
	channelPrefix = "chessrelay:topic:"

	// How long Subscribe waits for the server to confirm a new channel
	subscribeTimeout = 5 * time.Second
)

func channelName(topic string) string {
	return channelPrefix + topic
}

func topicFromChannel(channel string) string {
	return strings.TrimPrefix(channel, channelPrefix)
}

// redisTopic tracks local subscribers of one redis channel
type redisTopic struct {
	subscribers map[*subscriber]bool
	// closed once the server confirms the channel subscription
	ready chan struct{}
}

// RedisRouter shares topics between server instances through redis
// pub/sub. All topics are multiplexed over a single connection and fanned
// out to local subscribers.
type RedisRouter struct {
	client *redis.Client
	pubsub *redis.PubSub
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*redisTopic

	wg sync.WaitGroup
}

// Ensure RedisRouter implements Router
var _ Router = (*RedisRouter)(nil)

// NewRedisRouter starts receiving on a fresh pub/sub connection
func NewRedisRouter(ctx context.Context, client *redis.Client, clk clock.Clock, logger *slog.Logger) *RedisRouter {
	r := &RedisRouter{
		client: client,
		pubsub: client.Subscribe(ctx),
		clock:  clk,
		logger: logger.With(slog.String("component", "pubsub-redis")),
		topics: make(map[string]*redisTopic),
	}
	r.wg.Add(1)
	go r.receive()
	return r
}

// Publish sends the event to every instance subscribed to the topic
func (r *RedisRouter) Publish(ctx context.Context, topic string, event model.Event) error {
	msg, err := NewMessage(topic, event, r.clock.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Publish(ctx, channelName(topic), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts delivering the topic's messages to handler. It returns
// once redis has confirmed the channel subscription.
func (r *RedisRouter) Subscribe(topic string, handler Handler) (Subscription, error) {
	sub := newSubscriber(topic, handler, r.logger)

	r.mu.Lock()
	t, ok := r.topics[topic]
	if !ok {
		t = &redisTopic{subscribers: make(map[*subscriber]bool), ready: make(chan struct{})}
		r.topics[topic] = t
	}
	t.subscribers[sub] = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	if !ok {
		if err := r.pubsub.Subscribe(ctx, channelName(topic)); err != nil {
			r.remove(topic, sub)
			return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}

	select {
	case <-t.ready:
	case <-ctx.Done():
		r.remove(topic, sub)
		return nil, fmt.Errorf("subscribe to %s: %w", topic, ctx.Err())
	}

	return &redisSubscription{router: r, topic: topic, sub: sub}, nil
}

// remove drops a local subscriber and releases the channel when it was
// the last one
func (r *RedisRouter) remove(topic string, sub *subscriber) {
	sub.close()
	r.forget(topic, sub)
}

func (r *RedisRouter) forget(topic string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(t.subscribers, sub)
	if len(t.subscribers) > 0 {
		return
	}
	delete(r.topics, topic)
	// Released under the lock so a concurrent resubscribe is sent after it
	if err := r.pubsub.Unsubscribe(context.Background(), channelName(topic)); err != nil {
		r.logger.Warn("failed to release channel",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
}

func (r *RedisRouter) receive() {
	defer r.wg.Done()
	for received := range r.pubsub.ChannelWithSubscriptions() {
		switch m := received.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				r.markReady(topicFromChannel(m.Channel))
			}
		case *redis.Message:
			r.dispatch(m)
		}
	}
}

func (r *RedisRouter) markReady(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[topic]
	if !ok {
		return
	}
	// Reconnects replay subscribe confirmations
	select {
	case <-t.ready:
	default:
		close(t.ready)
	}
}

func (r *RedisRouter) dispatch(m *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		r.logger.Warn("discarding malformed message",
			slog.String("channel", m.Channel),
			slog.Any("error", err))
		return
	}

	r.mu.Lock()
	t, ok := r.topics[topicFromChannel(m.Channel)]
	var subs []*subscriber
	if ok {
		subs = make([]*subscriber, 0, len(t.subscribers))
		for sub := range t.subscribers {
			subs = append(subs, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range subs {
		if !sub.enqueue(msg) {
			r.forget(topicFromChannel(m.Channel), sub)
		}
	}
}

// Close stops receiving and drops every local subscriber
func (r *RedisRouter) Close() error {
	err := r.pubsub.Close()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, t := range r.topics {
		for sub := range t.subscribers {
			sub.fail()
		}
		delete(r.topics, topic)
	}
	return err
}

type redisSubscription struct {
	router *RedisRouter
	topic  string
	sub    *subscriber
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() { s.router.remove(s.topic, s.sub) })
}

func (s *redisSubscription) Lost() <-chan struct{} {
	return s.sub.lost
}
