package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
)

// PlayerHandler handles player-related endpoints
type PlayerHandler struct {
	storage storage.Storage
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(storage storage.Storage) *PlayerHandler {
	return &PlayerHandler{
		storage: storage,
	}
}

// Create handles POST /api/v1/players. It is an idempotent ensure of the
// caller's own account.
func (h *PlayerHandler) Create(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	var req request.CreatePlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.Username != "" && req.Username != username {
		WriteError(w, NewForbiddenError("cannot create an account for another player"))
		return
	}

	cmd := model.PresenceConnect{Username: username}
	if err := cmd.Validate(); err != nil {
		WriteError(w, err)
		return
	}

	player, err := h.storage.CreatePlayer(r.Context(), username)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, player)
}
