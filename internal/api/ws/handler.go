package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/gateway"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/presence"
)

// Config holds WebSocket transport options
type Config struct {
	// OriginPatterns lists additional hosts allowed to open connections
	// from a browser. Same-origin requests are always allowed.
	OriginPatterns []string
}

// Handler upgrades requests to WebSocket connections
type Handler struct {
	dispatcher *gateway.Dispatcher
	router     pubsub.Router
	presence   *presence.Service
	config     Config
	logger     *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(
	dispatcher *gateway.Dispatcher,
	router pubsub.Router,
	presence *presence.Service,
	config Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		router:     router,
		presence:   presence,
		config:     config,
		logger:     logger.With(slog.String("component", "ws")),
	}
}

// ServeHTTP handles GET /api/v1/ws
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the response
		h.logger.Debug("upgrade failed", slog.Any("error", err))
		return
	}

	caller := gateway.Caller{
		Username:  middleware.Username(r.Context()),
		SessionID: model.SessionID(uuid.NewString()),
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		handler:       h,
		ws:            socket,
		caller:        caller,
		send:          make(chan ServerFrame, sendBufferSize),
		subscriptions: make(map[string]*subscription),
		ctx:           ctx,
		cancel:        cancel,
		logger: h.logger.With(
			slog.String("session_id", string(caller.SessionID)),
			slog.String("username", caller.Username)),
	}

	c.logger.Debug("connection opened")
	c.serve()
}
