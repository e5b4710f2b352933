package handler

import (
	"net/http"

	"github.com/mcoot/chessrelay/internal/api/apierr"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) error {
	return apierr.NewForbiddenError(message)
}
