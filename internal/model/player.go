package model

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// PlayerID is the opaque numeric identifier assigned to a player by storage
type PlayerID int64

func (id PlayerID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Player is a persisted account. Its identity is the unique username.
type Player struct {
	ID        PlayerID  `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// validateUsername checks a username field. Names become topic path
// segments, so they may not contain a slash or whitespace.
func validateUsername(field, username string) error {
	if strings.TrimSpace(username) == "" {
		return required(field)
	}
	if strings.ContainsRune(username, '/') {
		return &ValidationError{Field: field, Reason: "must not contain '/'"}
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return &ValidationError{Field: field, Reason: "must not contain whitespace"}
	}
	return nil
}

// SessionID identifies one transport connection
type SessionID string

// Session binds a connected player to the transport connection it is
// reachable on. Sessions only live in the presence registry.
type Session struct {
	ID          SessionID `json:"session_id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}
