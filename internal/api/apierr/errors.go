package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/chessrelay/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodePlayerNotFound       = "PLAYER_NOT_FOUND"
	CodeInvitationNotFound   = "INVITATION_NOT_FOUND"
	CodeGameNotFound         = "GAME_NOT_FOUND"
	CodeNotFound             = "NOT_FOUND"
	CodeInvitationNotPending = "INVITATION_NOT_PENDING"
	CodeGameNotInProgress    = "GAME_NOT_IN_PROGRESS"
	CodeInvalidState         = "INVALID_STATE"
	CodePlayerOffline        = "PLAYER_OFFLINE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Classify returns the HTTP status and client-facing error for err.
// Errors outside the model taxonomy are reported as internal without
// exposing their message.
func Classify(err error) (int, APIError) {
	he := toHTTPError(err)
	return he.status, he.apiError
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, ve.Error()}}
	}

	switch {
	// Not found
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrInvitationNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeInvitationNotFound, "Invitation not found"}}
	case errors.Is(err, model.ErrGameNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeGameNotFound, "Game not found"}}
	case errors.Is(err, model.ErrNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Not found"}}

	// Invalid state
	case errors.Is(err, model.ErrInvitationNotPending):
		return &httpError{http.StatusConflict, APIError{CodeInvitationNotPending, "Invitation is no longer pending"}}
	case errors.Is(err, model.ErrGameNotInProgress):
		return &httpError{http.StatusConflict, APIError{CodeGameNotInProgress, "Game is not in progress"}}
	case errors.Is(err, model.ErrInvalidState):
		return &httpError{http.StatusConflict, APIError{CodeInvalidState, "Invalid state"}}

	case errors.Is(err, model.ErrOffline):
		return &httpError{http.StatusConflict, APIError{CodePlayerOffline, "Player is not online"}}

	case errors.Is(err, model.ErrUnauthenticated):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}

	// Forbidden
	case errors.Is(err, model.ErrNotInvitationReceiver):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Only the invited player can respond"}}
	case errors.Is(err, model.ErrNotColorOwner):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "You do not play that colour in this game"}}
	case errors.Is(err, model.ErrNotParticipant):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "You are not playing in this game"}}
	case errors.Is(err, model.ErrForbidden):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Forbidden"}}

	case errors.Is(err, model.ErrValidation):
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, err.Error()}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
