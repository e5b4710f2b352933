// Package sse streams topic messages to clients that cannot hold a
// WebSocket open. It is receive-only: commands go over HTTP.
package sse

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mcoot/chessrelay/internal/api/apierr"
	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/pubsub"
)

const (
	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Handler serves GET /api/v1/events
type Handler struct {
	router     pubsub.Router
	pingPeriod time.Duration
	logger     *slog.Logger
}

// NewHandler creates a new SSE handler
func NewHandler(router pubsub.Router, logger *slog.Logger) *Handler {
	return &Handler{
		router:     router,
		pingPeriod: pingPeriod,
		logger:     logger.With(slog.String("component", "sse")),
	}
}

// ServeHTTP subscribes to every topic named in the query and streams
// messages until the client goes away
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		apierr.WriteError(w, apierr.NewInvalidRequestError("at least one topic is required"))
		return
	}

	username := middleware.Username(r.Context())
	for _, topic := range topics {
		if err := pubsub.AuthorizeSubscribe(topic, username); err != nil {
			if errors.Is(err, pubsub.ErrTopicForbidden) {
				apierr.WriteError(w, apierr.NewForbiddenError(err.Error()+": "+topic))
			} else {
				apierr.WriteError(w, apierr.NewInvalidRequestError(err.Error()+": "+topic))
			}
			return
		}
	}

	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	send := make(chan []byte, sendBufferSize)
	done := make(chan struct{})
	defer close(done)

	// lost ends the stream when the client cannot keep up or the router
	// drops a subscription; the client reconnects and resyncs
	lost := make(chan struct{})
	var lostOnce sync.Once
	markLost := func() { lostOnce.Do(func() { close(lost) }) }

	subs := make([]pubsub.Subscription, 0, len(topics))
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	for _, topic := range topics {
		sub, err := h.router.Subscribe(topic, func(msg pubsub.Message) {
			data, err := json.Marshal(ws.MessageFrame(msg))
			if err != nil {
				h.logger.Error("failed to encode message", slog.String("topic", msg.Topic), slog.Any("error", err))
				return
			}
			select {
			case send <- formatMessage(msg.Kind, string(data)):
			case <-done:
			default:
				h.logger.Warn("client buffer full, ending stream", slog.String("topic", msg.Topic))
				markLost()
			}
		})
		if err != nil {
			h.logger.Error("subscribe failed", slog.String("topic", topic), slog.Any("error", err))
			apierr.WriteError(w, apierr.NewInternalError())
			return
		}
		subs = append(subs, sub)
		go func() {
			select {
			case <-sub.Lost():
				markLost()
			case <-done:
			}
		}()
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Send initial connection event
	_, _ = w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-send:
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-lost:
			return

		case <-r.Context().Done():
			return
		}
	}
}
