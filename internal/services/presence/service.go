package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/storage"
)

// Service keeps the registry and the published roster in step
type Service struct {
	registry    Registry
	storage     storage.Storage
	broadcaster *pubsub.Broadcaster
	logger      *slog.Logger

	// Serializes roster snapshots so they publish in computed order
	rosterMu sync.Mutex
}

// NewService creates a new presence service
func NewService(registry Registry, store storage.Storage, broadcaster *pubsub.Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		registry:    registry,
		storage:     store,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "presence")),
	}
}

// Connect marks the player online on sessionID and publishes the roster.
// It returns the session this connect superseded, if any.
func (s *Service) Connect(ctx context.Context, cmd model.PresenceConnect, sessionID model.SessionID) (model.SessionID, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	superseded, err := s.registry.Connect(ctx, cmd.Username, sessionID)
	if err != nil {
		return "", err
	}

	s.logger.Info("player connected",
		slog.String("username", cmd.Username),
		slog.String("session_id", string(sessionID)))
	if superseded != "" {
		s.logger.Info("session superseded",
			slog.String("username", cmd.Username),
			slog.String("session_id", string(superseded)))
	}

	s.publishRoster(ctx)
	return superseded, nil
}

// Disconnect marks the player offline. Disconnecting an offline player
// changes nothing and publishes nothing.
func (s *Service) Disconnect(ctx context.Context, cmd model.PresenceDisconnect) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	removed, err := s.registry.Disconnect(ctx, cmd.Username)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.logger.Info("player disconnected", slog.String("username", cmd.Username))
	s.publishRoster(ctx)
	return nil
}

// DisconnectSession is called when a transport closes. It only removes
// the player if sessionID is still their current session.
func (s *Service) DisconnectSession(ctx context.Context, sessionID model.SessionID) error {
	username, removed, err := s.registry.DisconnectBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.logger.Info("player session closed",
		slog.String("username", username),
		slog.String("session_id", string(sessionID)))
	s.publishRoster(ctx)
	return nil
}

// IsOnline reports whether the player currently has a session
func (s *Service) IsOnline(ctx context.Context, username string) (bool, error) {
	return s.registry.IsOnline(ctx, username)
}

// OnlinePlayersExcept lists the online players other than username
func (s *Service) OnlinePlayersExcept(ctx context.Context, cmd model.PresenceList) (model.PlayerList, error) {
	if err := cmd.Validate(); err != nil {
		return model.PlayerList{}, err
	}

	sessions, err := s.registry.ListOnlineExcept(ctx, cmd.Username)
	if err != nil {
		return model.PlayerList{}, err
	}
	players, err := s.resolve(ctx, sessions)
	if err != nil {
		return model.PlayerList{}, err
	}
	return model.PlayerList{Players: players}, nil
}

// SendPlayerList publishes the requester's private player list
func (s *Service) SendPlayerList(ctx context.Context, cmd model.PresenceList) error {
	list, err := s.OnlinePlayersExcept(ctx, cmd)
	if err != nil {
		return err
	}
	s.broadcaster.PlayerList(ctx, cmd.Username, list)
	return nil
}

// Roster returns the current online set
func (s *Service) Roster(ctx context.Context) (model.RosterSnapshot, error) {
	sessions, err := s.registry.ListOnline(ctx)
	if err != nil {
		return model.RosterSnapshot{}, err
	}
	players, err := s.resolve(ctx, sessions)
	if err != nil {
		return model.RosterSnapshot{}, err
	}
	return model.RosterSnapshot{Players: players}, nil
}

func (s *Service) publishRoster(ctx context.Context) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	roster, err := s.Roster(ctx)
	if err != nil {
		s.logger.Error("failed to compute roster", slog.Any("error", err))
		return
	}
	s.broadcaster.Roster(ctx, roster)
}

// resolve maps sessions to persisted players, skipping usernames that
// have no account
func (s *Service) resolve(ctx context.Context, sessions []model.Session) ([]model.OnlinePlayer, error) {
	players := make([]model.OnlinePlayer, 0, len(sessions))
	for _, session := range sessions {
		player, err := s.storage.FindPlayerByUsername(ctx, session.Username)
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Debug("skipping unknown player in roster", slog.String("username", session.Username))
			continue
		}
		if err != nil {
			return nil, err
		}
		players = append(players, model.OnlinePlayer{ID: player.ID, Username: player.Username, Online: true})
	}
	return players, nil
}
