package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/chessrelay/internal/api/middleware"
	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/services/invitation"
)

// InvitationHandler handles invitation endpoints
type InvitationHandler struct {
	invitations *invitation.Controller
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(invitations *invitation.Controller) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
	}
}

// Send handles POST /api/v1/invitations
func (h *InvitationHandler) Send(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	var req request.SendInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	view, err := h.invitations.Send(r.Context(), model.InviteRequest{
		SenderUsername:   username,
		ReceiverUsername: req.ReceiverUsername,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, view)
}

// Respond handles POST /api/v1/invitations/{id}/respond
func (h *InvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	username := middleware.MustUsername(r.Context())

	id, err := model.ParseInvitationID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.RespondInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if err := h.invitations.AuthorizeRespond(r.Context(), id, username); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.invitations.Respond(r.Context(), model.InviteResponse{InvitationID: id, Accepted: req.Accepted})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.InvitationFromResult(result))
}
