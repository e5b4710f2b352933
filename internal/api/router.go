package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/chessrelay/internal/api/handler"
	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/api/sse"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/gateway"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	"github.com/mcoot/chessrelay/internal/services/presence"
	"github.com/mcoot/chessrelay/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger               *slog.Logger
	Verifier             identity.Verifier
	Storage              storage.Storage
	Presence             *presence.Service
	InvitationController *invitation.Controller
	GameController       *game.Controller
	Dispatcher           *gateway.Dispatcher
	PubSub               pubsub.Router
	WebSocket            ws.Config
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.Storage)
	invitationHandler := handler.NewInvitationHandler(cfg.InvitationController)
	gameHandler := handler.NewGameHandler(cfg.GameController)
	wsHandler := ws.NewHandler(cfg.Dispatcher, cfg.PubSub, cfg.Presence, cfg.WebSocket, cfg.Logger)
	sseHandler := sse.NewHandler(cfg.PubSub, cfg.Logger)

	// Create middleware
	requireIdentity := middleware.RequireIdentity(cfg.Verifier)
	optionalIdentity := middleware.OptionalIdentity(cfg.Verifier)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Health check endpoint (no identity)
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	// Streaming transports allow anonymous spectators
	api.Handle("/ws", optionalIdentity(wsHandler)).Methods(http.MethodGet)
	api.Handle("/events", optionalIdentity(sseHandler)).Methods(http.MethodGet)

	// Commands
	commands := api.NewRoute().Subrouter()
	commands.Use(requireIdentity)
	commands.HandleFunc("/players", playerHandler.Create).Methods(http.MethodPost)
	commands.HandleFunc("/invitations", invitationHandler.Send).Methods(http.MethodPost)
	commands.HandleFunc("/invitations/{id}/respond", invitationHandler.Respond).Methods(http.MethodPost)
	commands.HandleFunc("/games/{id}", gameHandler.Get).Methods(http.MethodGet)
	commands.HandleFunc("/games/{id}/moves", gameHandler.Move).Methods(http.MethodPost)
	commands.HandleFunc("/games/{id}/end", gameHandler.End).Methods(http.MethodPost)
	commands.HandleFunc("/games/{id}/join", gameHandler.Join).Methods(http.MethodPost)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
