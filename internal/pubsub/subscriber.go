package pubsub

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// maxPendingMessages bounds how far a subscriber may fall behind before
// the router gives up on it
const maxPendingMessages = 4096

// subscriber owns a mailbox and a goroutine that feeds the handler, so a
// slow handler only ever delays its own messages
type subscriber struct {
	topic   string
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	pending []Message
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	lost      chan struct{}
	closeOnce sync.Once
	lostOnce  sync.Once
}

func newSubscriber(topic string, handler Handler, logger *slog.Logger) *subscriber {
	s := &subscriber{
		topic:   topic,
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		lost:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			msg, ok := s.next()
			if !ok {
				break
			}
			s.handle(msg)
		}
	}
}

// next pops the oldest pending message. Nothing is handed out once the
// subscriber is closed.
func (s *subscriber) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.pending) == 0 {
		return Message{}, false
	}
	msg := s.pending[0]
	s.pending[0] = Message{}
	s.pending = s.pending[1:]
	return msg, true
}

func (s *subscriber) handle(msg Message) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("subscriber handler panicked",
				slog.String("topic", s.topic),
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	s.handler(msg)
}

// enqueue hands a message to the subscriber without blocking. It reports
// false when the subscriber had fallen too far behind; the subscription
// is then ended and its Lost channel closed.
func (s *subscriber) enqueue(msg Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	if len(s.pending) >= maxPendingMessages {
		s.mu.Unlock()
		s.logger.Warn("subscriber too far behind, ending subscription",
			slog.String("topic", s.topic),
			slog.String("kind", msg.Kind))
		s.fail()
		return false
	}
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops delivery. A handler already running finishes, but no
// further message is handed to it.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// fail closes the subscriber on the router's initiative
func (s *subscriber) fail() {
	s.lostOnce.Do(func() { close(s.lost) })
	s.close()
}
