package storage

import (
	"context"
	"time"

	"github.com/mcoot/chessrelay/internal/model"
)

// Storage defines the interface for data persistence. Operations that
// change an invitation or a game are atomic: they either commit fully or
// leave the record untouched.
type Storage interface {
	// Player operations
	CreatePlayer(ctx context.Context, username string) (*model.Player, error)
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	FindPlayerByUsername(ctx context.Context, username string) (*model.Player, error)

	// Invitation operations
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	GetInvitation(ctx context.Context, id model.InvitationID) (*model.Invitation, error)
	// TransitionInvitation moves an invitation from one status to another
	// only if it is currently in from. Otherwise it returns
	// model.ErrInvitationNotPending and changes nothing.
	TransitionInvitation(ctx context.Context, id model.InvitationID, from, to model.InvitationStatus, at time.Time) (*model.Invitation, error)
	ListPendingInvitations(ctx context.Context, receiverID model.PlayerID) ([]*model.Invitation, error)

	// Game operations
	CreateGame(ctx context.Context, game *model.GameSession) error
	// AppendMove numbers the move as the game's move count plus one, stores
	// it, and advances the game's position and turn. The game must be in
	// progress.
	AppendMove(ctx context.Context, gameID model.GameID, move *model.MoveEvent) error
	// SetStatus moves an in-progress game to a terminal status
	SetStatus(ctx context.Context, gameID model.GameID, status model.GameStatus, at time.Time) error
	// LoadGame returns the game with its moves and both players resolved
	LoadGame(ctx context.Context, gameID model.GameID) (*model.GameSession, error)

	Close() error
}
