package model

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the coordination layer wraps
// exactly one of these so callers can classify it with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrOffline      = errors.New("offline")
	ErrValidation   = errors.New("validation failed")

	// ErrForbidden marks an identified caller acting on something that
	// is not theirs; ErrUnauthenticated a caller with no identity at all
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
)

var (
	// Not found
	ErrPlayerNotFound     = fmt.Errorf("player %w", ErrNotFound)
	ErrInvitationNotFound = fmt.Errorf("invitation %w", ErrNotFound)
	ErrGameNotFound       = fmt.Errorf("game %w", ErrNotFound)

	// Invalid state
	ErrInvitationNotPending = fmt.Errorf("invitation is no longer pending: %w", ErrInvalidState)
	ErrGameNotInProgress    = fmt.Errorf("game is not in progress: %w", ErrInvalidState)

	// Offline
	ErrPlayerOffline = fmt.Errorf("player is not online: %w", ErrOffline)

	// Forbidden
	ErrNotInvitationReceiver = fmt.Errorf("only the invited player can respond: %w", ErrForbidden)
	ErrNotColorOwner         = fmt.Errorf("you do not play that colour in this game: %w", ErrForbidden)
	ErrNotParticipant        = fmt.Errorf("you are not playing in this game: %w", ErrForbidden)
)

// ValidationError reports a malformed inbound payload
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// required returns a ValidationError for an empty field
func required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
