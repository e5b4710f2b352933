// Package invitation turns a pairwise invitation into a live game
package invitation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/dependencies/random"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
	"github.com/mcoot/chessrelay/internal/storage"
)

// ColorPolicy decides who plays white in a game created from an invitation
type ColorPolicy string

const (
	// ColorReceiverWhite gives white to the player who accepted
	ColorReceiverWhite ColorPolicy = "receiver-white"
	// ColorRandom flips a coin
	ColorRandom ColorPolicy = "random"
)

// ParseColorPolicy validates a configured policy name
func ParseColorPolicy(s string) (ColorPolicy, error) {
	switch p := ColorPolicy(s); p {
	case ColorReceiverWhite, ColorRandom:
		return p, nil
	case "":
		return ColorReceiverWhite, nil
	default:
		return "", fmt.Errorf("unknown color policy %q: must be %q or %q", s, ColorReceiverWhite, ColorRandom)
	}
}

// PresenceChecker reports whether a player can be reached right now
type PresenceChecker interface {
	IsOnline(ctx context.Context, username string) (bool, error)
}

// Controller manages the invitation lifecycle
type Controller struct {
	storage        storage.Storage
	presence       PresenceChecker
	gameController *game.Controller
	broadcaster    *pubsub.Broadcaster
	clock          clock.Clock
	random         random.Random
	policy         ColorPolicy
	logger         *slog.Logger
}

// NewController creates a new InvitationController
func NewController(
	storage storage.Storage,
	presence PresenceChecker,
	gameController *game.Controller,
	broadcaster *pubsub.Broadcaster,
	clock clock.Clock,
	random random.Random,
	policy ColorPolicy,
	logger *slog.Logger,
) *Controller {
	if policy == "" {
		policy = ColorReceiverWhite
	}
	return &Controller{
		storage:        storage,
		presence:       presence,
		gameController: gameController,
		broadcaster:    broadcaster,
		clock:          clock,
		random:         random,
		policy:         policy,
		logger:         logger.With(slog.String("component", "invitation")),
	}
}

// Send invites the receiver to a game. The receiver must be online.
func (c *Controller) Send(ctx context.Context, cmd model.InviteRequest) (*model.InvitationView, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sender, err := c.storage.FindPlayerByUsername(ctx, cmd.SenderUsername)
	if err != nil {
		return nil, err
	}
	receiver, err := c.storage.FindPlayerByUsername(ctx, cmd.ReceiverUsername)
	if err != nil {
		return nil, err
	}

	online, err := c.presence.IsOnline(ctx, receiver.Username)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, model.ErrPlayerOffline
	}

	now := c.clock.Now()
	inv := &model.Invitation{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Status:     model.InvitationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.storage.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	view := model.NewInvitationView(inv, *sender, *receiver)
	c.broadcaster.InvitationReceived(ctx, view)
	c.broadcaster.InvitationSent(ctx, view)

	c.logger.Info("invitation sent",
		slog.Int64("invitation_id", int64(inv.ID)),
		slog.String("sender", sender.Username),
		slog.String("receiver", receiver.Username),
	)
	return &view, nil
}

// AuthorizeRespond checks that username is the player the invitation
// was sent to. Transports call it before Respond.
func (c *Controller) AuthorizeRespond(ctx context.Context, id model.InvitationID, username string) error {
	inv, err := c.storage.GetInvitation(ctx, id)
	if err != nil {
		return err
	}
	receiver, err := c.storage.GetPlayer(ctx, inv.ReceiverID)
	if err != nil {
		return err
	}
	if receiver.Username != username {
		return model.ErrNotInvitationReceiver
	}
	return nil
}

// Respond accepts or refuses a pending invitation. Each invitation is
// resolved at most once; later answers fail with an invalid state error.
func (c *Controller) Respond(ctx context.Context, cmd model.InviteResponse) (*model.RespondResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.storage.GetInvitation(ctx, cmd.InvitationID); err != nil {
		return nil, err
	}

	if !cmd.Accepted {
		return c.refuse(ctx, cmd.InvitationID)
	}
	return c.accept(ctx, cmd.InvitationID)
}

func (c *Controller) refuse(ctx context.Context, id model.InvitationID) (*model.RespondResult, error) {
	inv, err := c.storage.TransitionInvitation(ctx, id, model.InvitationPending, model.InvitationRefused, c.clock.Now())
	if err != nil {
		return nil, err
	}

	view, err := c.view(ctx, inv)
	if err != nil {
		return nil, err
	}
	c.broadcaster.InvitationRefused(ctx, view)

	c.logger.Info("invitation refused",
		slog.Int64("invitation_id", int64(id)),
		slog.String("sender", view.Sender.Username),
		slog.String("receiver", view.Receiver.Username),
	)
	return &model.RespondResult{Invitation: view}, nil
}

func (c *Controller) accept(ctx context.Context, id model.InvitationID) (*model.RespondResult, error) {
	inv, err := c.storage.TransitionInvitation(ctx, id, model.InvitationPending, model.InvitationAccepted, c.clock.Now())
	if err != nil {
		return nil, err
	}

	view, err := c.view(ctx, inv)
	if err != nil {
		c.revert(ctx, id)
		return nil, err
	}

	white, black := c.assignColors(view.Sender, view.Receiver)
	session, err := c.gameController.CreateGame(ctx, white, black)
	if err != nil {
		c.revert(ctx, id)
		return nil, err
	}

	c.broadcaster.GameCreated(ctx, session)

	c.logger.Info("invitation accepted",
		slog.Int64("invitation_id", int64(id)),
		slog.Int64("game_id", int64(session.ID)),
	)
	return &model.RespondResult{Invitation: view, Game: session}, nil
}

// revert returns an accepted invitation to pending after the game could
// not be created, so it can be answered again
func (c *Controller) revert(ctx context.Context, id model.InvitationID) {
	_, err := c.storage.TransitionInvitation(ctx, id, model.InvitationAccepted, model.InvitationPending, c.clock.Now())
	if err != nil {
		c.logger.Error("failed to revert invitation",
			slog.Int64("invitation_id", int64(id)),
			slog.Any("error", err))
	}
}

func (c *Controller) assignColors(sender, receiver model.Player) (white, black model.Player) {
	if c.policy == ColorRandom && random.Coin(c.random) {
		return sender, receiver
	}
	return receiver, sender
}

// Pending lists the invitations still awaiting the player's answer
func (c *Controller) Pending(ctx context.Context, cmd model.PendingInvitationsRequest) ([]model.InvitationView, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	player, err := c.storage.FindPlayerByUsername(ctx, cmd.Username)
	if err != nil {
		return nil, err
	}

	invitations, err := c.storage.ListPendingInvitations(ctx, player.ID)
	if err != nil {
		return nil, err
	}

	views := make([]model.InvitationView, 0, len(invitations))
	for _, inv := range invitations {
		sender, err := c.storage.GetPlayer(ctx, inv.SenderID)
		if err != nil {
			return nil, err
		}
		views = append(views, model.NewInvitationView(inv, *sender, *player))
	}
	return views, nil
}

// SendPending publishes the player's pending invitations to their
// invitations topic
func (c *Controller) SendPending(ctx context.Context, cmd model.PendingInvitationsRequest) error {
	views, err := c.Pending(ctx, cmd)
	if err != nil {
		return err
	}
	c.broadcaster.PendingInvitations(ctx, cmd.Username, model.PendingInvitations{Invitations: views})
	return nil
}

func (c *Controller) view(ctx context.Context, inv *model.Invitation) (model.InvitationView, error) {
	sender, err := c.storage.GetPlayer(ctx, inv.SenderID)
	if err != nil {
		return model.InvitationView{}, err
	}
	receiver, err := c.storage.GetPlayer(ctx, inv.ReceiverID)
	if err != nil {
		return model.InvitationView{}, err
	}
	return model.NewInvitationView(inv, *sender, *receiver), nil
}
