// Package gateway decodes inbound messages, routes them to the
// coordinators and reports failures back to the user that sent them.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	"github.com/mcoot/chessrelay/internal/services/presence"
)

// Inbound message types
const (
	TypePresenceConnect    = "presence.connect"
	TypePresenceDisconnect = "presence.disconnect"
	TypePresenceList       = "presence.list"
	TypeInvitationSend     = "invitation.send"
	TypeInvitationRespond  = "invitation.respond"
	TypeInvitationPending  = "invitation.pending"
	TypeGameMove           = "game.move"
	TypeGameEnd            = "game.end"
	TypeGameJoin           = "game.join"
)

// Envelope is one inbound frame
type Envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Caller identifies the connection a message arrived on
type Caller struct {
	// Username is the verified identity, empty for anonymous connections
	Username  string
	SessionID model.SessionID
}

// errPanic marks a handler that panicked
var errPanic = errors.New("handler panicked")

// Dispatcher routes inbound messages to the coordinators
type Dispatcher struct {
	presence    *presence.Service
	invitations *invitation.Controller
	games       *game.Controller
	broadcaster *pubsub.Broadcaster
	logger      *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	presence *presence.Service,
	invitations *invitation.Controller,
	games *game.Controller,
	broadcaster *pubsub.Broadcaster,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		presence:    presence,
		invitations: invitations,
		games:       games,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "gateway")),
	}
}

// Dispatch handles one message on behalf of an identified caller.
// Anonymous callers are refused before anything reaches the coordinators.
// Failures are published to the addressee's errors topic when there is
// one and logged otherwise. The error is also returned so transports can
// record it.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, env Envelope) (err error) {
	addressee := caller.Username

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic recovered",
				slog.String("type", env.Type),
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
		if err != nil {
			d.report(ctx, addressee, env.Type, err)
		}
	}()

	if caller.Username == "" {
		return model.ErrUnauthenticated
	}

	switch env.Type {
	case TypePresenceConnect:
		var cmd model.PresenceConnect
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.Username); err != nil {
			return err
		}
		addressee = cmd.Username
		_, err := d.presence.Connect(ctx, cmd, caller.SessionID)
		return err

	case TypePresenceDisconnect:
		var cmd model.PresenceDisconnect
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.Username); err != nil {
			return err
		}
		addressee = cmd.Username
		return d.presence.Disconnect(ctx, cmd)

	case TypePresenceList:
		var cmd model.PresenceList
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.Username); err != nil {
			return err
		}
		addressee = cmd.Username
		return d.presence.SendPlayerList(ctx, cmd)

	case TypeInvitationSend:
		var cmd model.InviteRequest
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.SenderUsername); err != nil {
			return err
		}
		addressee = cmd.SenderUsername
		_, err := d.invitations.Send(ctx, cmd)
		return err

	case TypeInvitationRespond:
		var cmd model.InviteResponse
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := cmd.Validate(); err != nil {
			return err
		}
		if err := d.invitations.AuthorizeRespond(ctx, cmd.InvitationID, caller.Username); err != nil {
			return err
		}
		_, err := d.invitations.Respond(ctx, cmd)
		return err

	case TypeInvitationPending:
		var cmd model.PendingInvitationsRequest
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.Username); err != nil {
			return err
		}
		addressee = cmd.Username
		return d.invitations.SendPending(ctx, cmd)

	case TypeGameMove:
		var cmd model.MoveSubmission
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := cmd.Validate(); err != nil {
			return err
		}
		if err := d.games.AuthorizeMove(ctx, cmd, caller.Username); err != nil {
			return err
		}
		_, err := d.games.SubmitMove(ctx, cmd)
		return err

	case TypeGameEnd:
		var cmd model.EndGameRequest
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := cmd.Validate(); err != nil {
			return err
		}
		if err := d.games.AuthorizeEnd(ctx, cmd.GameID, caller.Username); err != nil {
			return err
		}
		_, err := d.games.EndGame(ctx, cmd)
		return err

	case TypeGameJoin:
		var cmd model.JoinGameRequest
		if err := decode(env, &cmd); err != nil {
			return err
		}
		if err := fill(caller, &cmd.Username); err != nil {
			return err
		}
		addressee = cmd.Username
		_, err := d.games.JoinGame(ctx, cmd)
		return err

	default:
		return &model.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

func decode(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return &model.ValidationError{Field: "payload", Reason: "malformed JSON"}
	}
	return nil
}

// fill defaults a username field to the caller's identity and refuses
// messages that claim to be someone else
func fill(caller Caller, username *string) error {
	if *username == "" {
		*username = caller.Username
		return nil
	}
	if *username != caller.Username {
		return &model.ValidationError{Field: "username", Reason: "does not match the connection identity"}
	}
	return nil
}

func (d *Dispatcher) report(ctx context.Context, addressee, msgType string, err error) {
	notice := ErrorNotice(err)
	if addressee == "" {
		d.logger.Warn("dropping failed message with no addressee",
			slog.String("type", msgType),
			slog.String("code", notice.Code),
			slog.Any("error", err))
		return
	}

	if notice.Code == internalCode {
		d.logger.Error("message failed",
			slog.String("type", msgType),
			slog.String("username", addressee),
			slog.Any("error", err))
	} else {
		d.logger.Debug("message rejected",
			slog.String("type", msgType),
			slog.String("username", addressee),
			slog.Any("error", err))
	}
	d.broadcaster.Error(ctx, addressee, notice)
}
