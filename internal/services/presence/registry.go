// Package presence tracks which players are reachable and publishes the
// roster whenever that changes.
package presence

import (
	"context"

	"github.com/mcoot/chessrelay/internal/model"
)

// Registry maps each online player to their one current session.
// Operations are linearizable per player.
type Registry interface {
	// Connect binds username to sessionID, last connect wins. It returns
	// the session that was superseded, or "" if the player was offline
	// or already bound to sessionID.
	Connect(ctx context.Context, username string, sessionID model.SessionID) (model.SessionID, error)

	// Disconnect removes the player whatever session is bound. It
	// reports whether the player was online.
	Disconnect(ctx context.Context, username string) (bool, error)

	// DisconnectBySession removes the player bound to sessionID, if any.
	// A superseded session never removes its player's newer session.
	DisconnectBySession(ctx context.Context, sessionID model.SessionID) (string, bool, error)

	IsOnline(ctx context.Context, username string) (bool, error)

	// ListOnline returns the online sessions sorted by username
	ListOnline(ctx context.Context) ([]model.Session, error)

	// ListOnlineExcept is ListOnline without username
	ListOnlineExcept(ctx context.Context, username string) ([]model.Session, error)
}
