package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/storage"
)

// Controller serializes activity within each game and relays it to the
// game's subscribers
type Controller struct {
	storage     storage.Storage
	broadcaster *pubsub.Broadcaster
	locks       *gameLocks
	clock       clock.Clock
	logger      *slog.Logger
}

// NewController creates a new GameController
func NewController(
	storage storage.Storage,
	broadcaster *pubsub.Broadcaster,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:     storage,
		broadcaster: broadcaster,
		locks:       newGameLocks(),
		clock:       clock,
		logger:      logger.With(slog.String("component", "game")),
	}
}

// CreateGame starts a game between two players from the standard
// starting position with white to move
func (c *Controller) CreateGame(ctx context.Context, white, black model.Player) (*model.GameSession, error) {
	game := model.NewGameSession(white, black, c.clock.Now())
	if err := c.storage.CreateGame(ctx, game); err != nil {
		c.logger.Error("failed to create game",
			slog.String("white", white.Username),
			slog.String("black", black.Username),
			slog.Any("error", err),
		)
		return nil, err
	}

	c.logger.Info("game created",
		slog.Int64("game_id", int64(game.ID)),
		slog.String("white", white.Username),
		slog.String("black", black.Username),
	)
	return game, nil
}

// GetGame retrieves a game with its players and moves
func (c *Controller) GetGame(ctx context.Context, gameID model.GameID) (*model.GameSession, error) {
	return c.storage.LoadGame(ctx, gameID)
}

// AuthorizeMove checks that username plays the colour the move is
// submitted for
func (c *Controller) AuthorizeMove(ctx context.Context, cmd model.MoveSubmission, username string) error {
	game, err := c.storage.LoadGame(ctx, cmd.GameID)
	if err != nil {
		return err
	}
	if game.PlayerFor(cmd.PlayerColor) != username {
		return model.ErrNotColorOwner
	}
	return nil
}

// AuthorizeEnd checks that username plays in the game
func (c *Controller) AuthorizeEnd(ctx context.Context, gameID model.GameID, username string) error {
	game, err := c.storage.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.White.Username != username && game.Black.Username != username {
		return model.ErrNotParticipant
	}
	return nil
}

// SubmitMove numbers, stores and broadcasts a move. Moves on a game that
// is not in progress are rejected without being stored or broadcast.
func (c *Controller) SubmitMove(ctx context.Context, cmd model.MoveSubmission) (*model.MoveEvent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	release := c.locks.lock(cmd.GameID)
	defer release()

	move := &model.MoveEvent{
		GameID:      cmd.GameID,
		From:        cmd.From,
		To:          cmd.To,
		Piece:       cmd.Piece,
		Promotion:   cmd.Promotion,
		FENAfter:    cmd.FENAfter,
		SAN:         cmd.SAN,
		PlayerColor: cmd.PlayerColor,
		CreatedAt:   c.clock.Now(),
	}
	if err := c.storage.AppendMove(ctx, cmd.GameID, move); err != nil {
		if errors.Is(err, model.ErrInvalidState) {
			c.logger.Warn("move rejected",
				slog.Int64("game_id", int64(cmd.GameID)),
				slog.Any("error", err))
		}
		return nil, err
	}

	// Still under the game lock, so broadcast order matches move numbers
	c.broadcaster.Move(ctx, *move)

	c.logger.Debug("move relayed",
		slog.Int64("game_id", int64(move.GameID)),
		slog.Int("move_number", move.MoveNumber),
		slog.String("from", move.From),
		slog.String("to", move.To),
	)
	return move, nil
}

// EndGame records the result of an in-progress game and broadcasts the
// final snapshot. Unrecognised results end the game as abandoned.
func (c *Controller) EndGame(ctx context.Context, cmd model.EndGameRequest) (*model.GameSession, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	release := c.locks.lock(cmd.GameID)
	defer release()

	status := model.StatusForResult(cmd.Result)
	if err := c.storage.SetStatus(ctx, cmd.GameID, status, c.clock.Now()); err != nil {
		return nil, err
	}

	game, err := c.storage.LoadGame(ctx, cmd.GameID)
	if err != nil {
		return nil, err
	}

	c.broadcaster.Status(ctx, game, cmd.Reason)

	c.logger.Info("game ended",
		slog.Int64("game_id", int64(game.ID)),
		slog.String("status", string(game.Status)),
		slog.String("reason", cmd.Reason),
	)
	return game, nil
}

// JoinGame sends a catch-up snapshot to the requesting user's private
// game-state topic. Joining an unknown game does nothing.
func (c *Controller) JoinGame(ctx context.Context, cmd model.JoinGameRequest) (*model.GameSession, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	game, err := c.storage.LoadGame(ctx, cmd.GameID)
	if errors.Is(err, model.ErrGameNotFound) {
		c.logger.Debug("join for unknown game ignored",
			slog.Int64("game_id", int64(cmd.GameID)),
			slog.String("username", cmd.Username))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.broadcaster.GameState(ctx, cmd.Username, game)
	return game, nil
}
