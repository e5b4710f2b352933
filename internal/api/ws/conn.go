package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mcoot/chessrelay/internal/api/apierr"
	"github.com/mcoot/chessrelay/internal/gateway"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time between pings
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing frames
	sendBufferSize = 256

	// Time allowed for presence cleanup after the peer has gone
	cleanupTimeout = 5 * time.Second
)

// subscription is a topic subscription held by a connection
type subscription struct {
	pubsub.Subscription
	stop chan struct{}
}

func (s *subscription) release() {
	close(s.stop)
	s.Unsubscribe()
}

// conn is one accepted WebSocket connection
type conn struct {
	handler *Handler
	ws      *websocket.Conn
	caller  gateway.Caller
	logger  *slog.Logger

	send chan ServerFrame

	// subscriptions is only touched by the read loop
	subscriptions map[string]*subscription

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *conn) serve() {
	defer c.cleanup()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.cancel()
	wg.Wait()
}

func (c *conn) readLoop() {
	for {
		var env gateway.Envelope
		if err := wsjson.Read(c.ctx, c.ws, &env); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && c.ctx.Err() == nil {
				c.logger.Debug("read failed", slog.Any("error", err))
			}
			return
		}

		switch env.Type {
		case TypeSubscribe:
			c.subscribe(env.Topic)
		case TypeUnsubscribe:
			c.unsubscribe(env.Topic)
		default:
			if c.caller.Username == "" {
				// no errors topic to report on, so answer on the socket
				c.enqueue(ErrorFrame("", gateway.ErrorNotice(model.ErrUnauthenticated)))
				continue
			}
			// errors have already been reported to the addressee
			_ = c.handler.dispatcher.Dispatch(c.ctx, c.caller, env)
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := wsjson.Write(ctx, c.ws, frame)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "ping failure")
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) subscribe(topic string) {
	if _, ok := c.subscriptions[topic]; ok {
		c.enqueue(ServerFrame{Type: FrameSubscribed, Topic: topic})
		return
	}

	if err := pubsub.AuthorizeSubscribe(topic, c.caller.Username); err != nil {
		c.enqueue(ErrorFrame(topic, topicErrorNotice(err)))
		return
	}

	sub, err := c.handler.router.Subscribe(topic, func(msg pubsub.Message) {
		c.enqueue(MessageFrame(msg))
	})
	if err != nil {
		c.logger.Error("subscribe failed", slog.String("topic", topic), slog.Any("error", err))
		c.enqueue(ErrorFrame(topic, gateway.ErrorNotice(err)))
		return
	}

	tracked := &subscription{Subscription: sub, stop: make(chan struct{})}
	c.subscriptions[topic] = tracked
	go c.watch(topic, tracked)
	c.enqueue(ServerFrame{Type: FrameSubscribed, Topic: topic})
}

// watch closes the connection if the router gives up on one of its
// subscriptions, so the client reconnects instead of missing messages
func (c *conn) watch(topic string, sub *subscription) {
	select {
	case <-sub.Lost():
		c.logger.Warn("subscription lost, closing connection", slog.String("topic", topic))
		c.close(websocket.StatusPolicyViolation, "subscription lost")
	case <-sub.stop:
	case <-c.ctx.Done():
	}
}

func (c *conn) unsubscribe(topic string) {
	if sub, ok := c.subscriptions[topic]; ok {
		sub.release()
		delete(c.subscriptions, topic)
	}
	c.enqueue(ServerFrame{Type: FrameUnsubscribed, Topic: topic})
}

// enqueue queues a frame for the writer. A peer that cannot keep up is
// disconnected rather than silently losing messages.
func (c *conn) enqueue(frame ServerFrame) {
	select {
	case <-c.ctx.Done():
	case c.send <- frame:
	default:
		c.logger.Warn("outbound queue full, closing connection", slog.String("topic", frame.Topic))
		c.close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close(code, reason)
	})
}

func (c *conn) cleanup() {
	for topic, sub := range c.subscriptions {
		sub.release()
		delete(c.subscriptions, topic)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), cleanupTimeout)
	defer cancel()
	if err := c.handler.presence.DisconnectSession(ctx, c.caller.SessionID); err != nil {
		c.logger.Error("presence cleanup failed", slog.Any("error", err))
	}

	c.close(websocket.StatusNormalClosure, "")
	c.logger.Debug("connection closed")
}

func topicErrorNotice(err error) model.ErrorNotice {
	if errors.Is(err, pubsub.ErrTopicForbidden) {
		return model.ErrorNotice{Code: apierr.CodeForbidden, Message: err.Error()}
	}
	return model.ErrorNotice{Code: apierr.CodeInvalidRequest, Message: err.Error()}
}
