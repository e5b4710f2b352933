package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Records are copied on the way in and out so callers never share state
// with the store.
type Storage struct {
	mu sync.RWMutex

	players       map[model.PlayerID]*model.Player
	usernameIndex map[string]model.PlayerID
	invitations   map[model.InvitationID]*model.Invitation
	games         map[model.GameID]*model.GameSession

	nextPlayerID     model.PlayerID
	nextInvitationID model.InvitationID
	nextGameID       model.GameID

	now func() time.Time
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:       make(map[model.PlayerID]*model.Player),
		usernameIndex: make(map[string]model.PlayerID),
		invitations:   make(map[model.InvitationID]*model.Invitation),
		games:         make(map[model.GameID]*model.GameSession),
		now:           time.Now,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Close() error {
	return nil
}

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, username string) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usernameIndex[username]; ok {
		p := *s.players[id]
		return &p, nil
	}

	s.nextPlayerID++
	player := &model.Player{
		ID:        s.nextPlayerID,
		Username:  username,
		CreatedAt: s.now(),
	}
	s.players[player.ID] = player
	s.usernameIndex[username] = player.ID

	p := *player
	return &p, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p := *player
	return &p, nil
}

func (s *Storage) FindPlayerByUsername(ctx context.Context, username string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameIndex[username]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p := *s.players[id]
	return &p, nil
}

// Invitation operations

func (s *Storage) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextInvitationID++
	inv.ID = s.nextInvitationID
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	stored := *inv
	s.invitations[inv.ID] = &stored
	return nil
}

func (s *Storage) GetInvitation(ctx context.Context, id model.InvitationID) (*model.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, model.ErrInvitationNotFound
	}
	i := *inv
	return &i, nil
}

func (s *Storage) TransitionInvitation(ctx context.Context, id model.InvitationID, from, to model.InvitationStatus, at time.Time) (*model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, model.ErrInvitationNotFound
	}
	if inv.Status != from {
		return nil, model.ErrInvitationNotPending
	}
	inv.Status = to
	inv.UpdatedAt = at

	i := *inv
	return &i, nil
}

func (s *Storage) ListPendingInvitations(ctx context.Context, receiverID model.PlayerID) ([]*model.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Invitation, 0)
	for _, inv := range s.invitations {
		if inv.ReceiverID == receiverID && inv.Status == model.InvitationPending {
			i := *inv
			result = append(result, &i)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[game.White.ID]; !ok {
		return model.ErrPlayerNotFound
	}
	if _, ok := s.players[game.Black.ID]; !ok {
		return model.ErrPlayerNotFound
	}

	s.nextGameID++
	game.ID = s.nextGameID
	if game.Moves == nil {
		game.Moves = []model.MoveEvent{}
	}
	s.games[game.ID] = copyGame(game)
	return nil
}

func (s *Storage) AppendMove(ctx context.Context, gameID model.GameID, move *model.MoveEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[gameID]
	if !ok {
		return model.ErrGameNotFound
	}
	if game.Status != model.GameInProgress {
		return model.ErrGameNotInProgress
	}

	move.GameID = gameID
	move.MoveNumber = len(game.Moves) + 1
	game.ApplyMove(*move)
	return nil
}

func (s *Storage) SetStatus(ctx context.Context, gameID model.GameID, status model.GameStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[gameID]
	if !ok {
		return model.ErrGameNotFound
	}
	if game.Status != model.GameInProgress {
		return model.ErrGameNotInProgress
	}
	game.Status = status
	game.UpdatedAt = at
	return nil
}

func (s *Storage) LoadGame(ctx context.Context, gameID model.GameID) (*model.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[gameID]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return copyGame(game), nil
}

func copyGame(g *model.GameSession) *model.GameSession {
	c := *g
	c.Moves = slices.Clone(g.Moves)
	if c.Moves == nil {
		c.Moves = []model.MoveEvent{}
	}
	return &c
}
