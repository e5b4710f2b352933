package pubsub

import (
	"context"
	"log/slog"

	"github.com/mcoot/chessrelay/internal/model"
)

// Broadcaster maps each outbound notice to its topic. Publish failures
// are logged and otherwise ignored.
type Broadcaster struct {
	router Router
	logger *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(router Router, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		router: router,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

func (b *Broadcaster) publish(ctx context.Context, topic string, event model.Event) {
	if err := b.router.Publish(ctx, topic, event); err != nil {
		b.logger.Error("failed to publish",
			slog.String("topic", topic),
			slog.String("kind", event.Kind()),
			slog.Any("error", err))
	}
}

// Roster sends the online set to everyone watching the global roster
func (b *Broadcaster) Roster(ctx context.Context, roster model.RosterSnapshot) {
	b.publish(ctx, PlayersTopic, roster)
}

// PlayerList sends a private online list to one player
func (b *Broadcaster) PlayerList(ctx context.Context, username string, list model.PlayerList) {
	b.publish(ctx, UserTopic(username, UserPlayers), list)
}

// InvitationReceived notifies the receiver of a new invitation
func (b *Broadcaster) InvitationReceived(ctx context.Context, view model.InvitationView) {
	b.publish(ctx, UserTopic(view.Receiver.Username, UserInvitations), model.InvitationNotice{Invitation: view})
}

// InvitationSent confirms to the sender that the invitation was delivered
func (b *Broadcaster) InvitationSent(ctx context.Context, view model.InvitationView) {
	b.publish(ctx, UserTopic(view.Sender.Username, UserInvitationSent), model.InvitationSentAck{Invitation: view})
}

// InvitationRefused tells the sender the receiver declined
func (b *Broadcaster) InvitationRefused(ctx context.Context, view model.InvitationView) {
	b.publish(ctx, UserTopic(view.Sender.Username, UserInvitationRefused), model.InvitationRefusedNotice{Invitation: view})
}

func (b *Broadcaster) PendingInvitations(ctx context.Context, username string, pending model.PendingInvitations) {
	b.publish(ctx, UserTopic(username, UserInvitations), pending)
}

// GameCreated tells both players about their new game
func (b *Broadcaster) GameCreated(ctx context.Context, game *model.GameSession) {
	notice := model.GameCreatedNotice{Game: game}
	b.publish(ctx, UserTopic(game.White.Username, UserGameCreated), notice)
	b.publish(ctx, UserTopic(game.Black.Username, UserGameCreated), notice)
}

// Move relays a numbered move to the game's subscribers
func (b *Broadcaster) Move(ctx context.Context, move model.MoveEvent) {
	b.publish(ctx, GameTopic(move.GameID, GameMoves), model.MoveBroadcast{MoveEvent: move})
}

// Status relays the end of a game
func (b *Broadcaster) Status(ctx context.Context, game *model.GameSession, reason string) {
	b.publish(ctx, GameTopic(game.ID, GameStatus), model.StatusBroadcast{Game: game, Reason: reason})
}

// GameState sends a private catch-up snapshot
func (b *Broadcaster) GameState(ctx context.Context, username string, game *model.GameSession) {
	b.publish(ctx, UserTopic(username, UserGameState), model.GameStateSnapshot{Game: game})
}

// Error reports a failed request to the user that made it
func (b *Broadcaster) Error(ctx context.Context, username string, notice model.ErrorNotice) {
	b.publish(ctx, UserTopic(username, UserErrors), notice)
}
