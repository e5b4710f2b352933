package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
)

// GameHandler handles game-related endpoints
type GameHandler struct {
	games *game.Controller
}

// NewGameHandler creates a new game handler
func NewGameHandler(games *game.Controller) *GameHandler {
	return &GameHandler{
		games: games,
	}
}

// Get handles GET /api/v1/games/{id}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	gameID, err := model.ParseGameID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	g, err := h.games.GetGame(r.Context(), gameID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, g)
}

// Move handles POST /api/v1/games/{id}/moves
func (h *GameHandler) Move(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	gameID, err := model.ParseGameID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.SubmitMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	submission := req.ToSubmission(gameID)
	if err := submission.Validate(); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.games.AuthorizeMove(r.Context(), submission, username); err != nil {
		WriteError(w, err)
		return
	}

	move, err := h.games.SubmitMove(r.Context(), submission)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, move)
}

// End handles POST /api/v1/games/{id}/end
func (h *GameHandler) End(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	gameID, err := model.ParseGameID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.EndGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if err := h.games.AuthorizeEnd(r.Context(), gameID, username); err != nil {
		WriteError(w, err)
		return
	}

	g, err := h.games.EndGame(r.Context(), model.EndGameRequest{GameID: gameID, Result: req.Result, Reason: req.Reason})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, g)
}

// Join handles POST /api/v1/games/{id}/join. The snapshot is delivered
// on the caller's game-state topic.
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	gameID, err := model.ParseGameID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	if _, err := h.games.JoinGame(r.Context(), model.JoinGameRequest{GameID: gameID, Username: username}); err != nil {
		WriteError(w, err)
		return
	}

	response.AcceptedOn(w, pubsub.UserTopic(username, pubsub.UserGameState))
}
