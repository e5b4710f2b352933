package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
)

var errTxContention = errors.New("redis transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// gameRecord is the stored form of a game. Players are referenced by id
// and moves live in their own list.
type gameRecord struct {
	ID          model.GameID     `json:"id"`
	WhiteID     model.PlayerID   `json:"white_id"`
	BlackID     model.PlayerID   `json:"black_id"`
	Status      model.GameStatus `json:"status"`
	CurrentTurn model.Color      `json:"current_turn"`
	CurrentFEN  string           `json:"current_fen"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Client exposes the underlying connection so other Redis-backed
// components can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// watch runs fn as an optimistic transaction over keys, retrying while
// another client modifies them first
func (s *Storage) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range s.cfg.MaxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxContention
}

// getter is satisfied by both the client and a watched transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string, notFound error) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, username string) (*model.Player, error) {
	if existing, err := s.FindPlayerByUsername(ctx, username); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	id, err := s.client.Incr(ctx, sequenceKey("player")).Result()
	if err != nil {
		return nil, err
	}
	player := &model.Player{
		ID:        model.PlayerID(id),
		Username:  username,
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(player)
	if err != nil {
		return nil, err
	}

	// Write the record before claiming the username so a reader that
	// finds the index entry always finds the player.
	if err := s.client.Set(ctx, playerKey(player.ID), data, 0).Err(); err != nil {
		return nil, err
	}
	claimed, err := s.client.SetNX(ctx, usernameIndexKey(username), int64(player.ID), 0).Result()
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost a race with a concurrent create of the same username
		_ = s.client.Del(ctx, playerKey(player.ID)).Err()
		return s.FindPlayerByUsername(ctx, username)
	}
	return player, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	return getJSON[model.Player](ctx, s.client, playerKey(id), model.ErrPlayerNotFound)
}

func (s *Storage) FindPlayerByUsername(ctx context.Context, username string) (*model.Player, error) {
	id, err := s.client.Get(ctx, usernameIndexKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return s.GetPlayer(ctx, model.PlayerID(id))
}

// Invitation operations

func (s *Storage) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	id, err := s.client.Incr(ctx, sequenceKey("invitation")).Result()
	if err != nil {
		return err
	}
	inv.ID = model.InvitationID(id)
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, invitationKey(inv.ID), data, s.cfg.InvitationTTL)
	if inv.Status == model.InvitationPending {
		pipe.SAdd(ctx, pendingIndexKey(inv.ReceiverID), int64(inv.ID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetInvitation(ctx context.Context, id model.InvitationID) (*model.Invitation, error) {
	return getJSON[model.Invitation](ctx, s.client, invitationKey(id), model.ErrInvitationNotFound)
}

func (s *Storage) TransitionInvitation(ctx context.Context, id model.InvitationID, from, to model.InvitationStatus, at time.Time) (*model.Invitation, error) {
	key := invitationKey(id)
	var result *model.Invitation

	err := s.watch(ctx, func(tx *redis.Tx) error {
		inv, err := getJSON[model.Invitation](ctx, tx, key, model.ErrInvitationNotFound)
		if err != nil {
			return err
		}
		if inv.Status != from {
			return model.ErrInvitationNotPending
		}
		inv.Status = to
		inv.UpdatedAt = at
		data, err := json.Marshal(inv)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.InvitationTTL)
			if to == model.InvitationPending {
				pipe.SAdd(ctx, pendingIndexKey(inv.ReceiverID), int64(id))
			} else {
				pipe.SRem(ctx, pendingIndexKey(inv.ReceiverID), int64(id))
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = inv
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) ListPendingInvitations(ctx context.Context, receiverID model.PlayerID) ([]*model.Invitation, error) {
	members, err := s.client.SMembers(ctx, pendingIndexKey(receiverID)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*model.Invitation, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt pending index entry %q: %w", m, err)
		}
		inv, err := s.GetInvitation(ctx, model.InvitationID(n))
		if errors.Is(err, model.ErrInvitationNotFound) {
			// Expired; drop the stale index entry
			_ = s.client.SRem(ctx, pendingIndexKey(receiverID), m).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if inv.Status == model.InvitationPending {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.GameSession) error {
	for _, id := range []model.PlayerID{game.White.ID, game.Black.ID} {
		if _, err := s.GetPlayer(ctx, id); err != nil {
			return err
		}
	}

	id, err := s.client.Incr(ctx, sequenceKey("game")).Result()
	if err != nil {
		return err
	}
	game.ID = model.GameID(id)
	if game.Moves == nil {
		game.Moves = []model.MoveEvent{}
	}

	data, err := json.Marshal(recordFromGame(game))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, gameKey(game.ID), data, s.cfg.GameTTL).Err()
}

func (s *Storage) AppendMove(ctx context.Context, gameID model.GameID, move *model.MoveEvent) error {
	gk, mk := gameKey(gameID), movesKey(gameID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		rec, err := getJSON[gameRecord](ctx, tx, gk, model.ErrGameNotFound)
		if err != nil {
			return err
		}
		if rec.Status != model.GameInProgress {
			return model.ErrGameNotInProgress
		}
		count, err := tx.LLen(ctx, mk).Result()
		if err != nil {
			return err
		}

		move.GameID = gameID
		move.MoveNumber = int(count) + 1
		rec.CurrentFEN = move.FENAfter
		rec.CurrentTurn = rec.CurrentTurn.Opposite()
		rec.UpdatedAt = move.CreatedAt

		moveData, err := json.Marshal(move)
		if err != nil {
			return err
		}
		recData, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, mk, moveData)
			pipe.Set(ctx, gk, recData, s.cfg.GameTTL)
			if s.cfg.GameTTL > 0 {
				pipe.Expire(ctx, mk, s.cfg.GameTTL)
			}
			return nil
		})
		return err
	}, gk, mk)
}

func (s *Storage) SetStatus(ctx context.Context, gameID model.GameID, status model.GameStatus, at time.Time) error {
	gk := gameKey(gameID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		rec, err := getJSON[gameRecord](ctx, tx, gk, model.ErrGameNotFound)
		if err != nil {
			return err
		}
		if rec.Status != model.GameInProgress {
			return model.ErrGameNotInProgress
		}
		rec.Status = status
		rec.UpdatedAt = at

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gk, data, s.cfg.GameTTL)
			return nil
		})
		return err
	}, gk)
}

func (s *Storage) LoadGame(ctx context.Context, gameID model.GameID) (*model.GameSession, error) {
	rec, err := getJSON[gameRecord](ctx, s.client, gameKey(gameID), model.ErrGameNotFound)
	if err != nil {
		return nil, err
	}

	rawMoves, err := s.client.LRange(ctx, movesKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	moves := make([]model.MoveEvent, 0, len(rawMoves))
	for _, raw := range rawMoves {
		var m model.MoveEvent
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}

	white, err := s.GetPlayer(ctx, rec.WhiteID)
	if err != nil {
		return nil, err
	}
	black, err := s.GetPlayer(ctx, rec.BlackID)
	if err != nil {
		return nil, err
	}

	return &model.GameSession{
		ID:          rec.ID,
		White:       *white,
		Black:       *black,
		Status:      rec.Status,
		CurrentTurn: rec.CurrentTurn,
		CurrentFEN:  rec.CurrentFEN,
		Moves:       moves,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func recordFromGame(g *model.GameSession) gameRecord {
	return gameRecord{
		ID:          g.ID,
		WhiteID:     g.White.ID,
		BlackID:     g.Black.ID,
		Status:      g.Status,
		CurrentTurn: g.CurrentTurn,
		CurrentFEN:  g.CurrentFEN,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}
