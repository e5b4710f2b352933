package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/model"
)

const keyPrefix = "chessrelay:presence"

var (
	playersKey     = keyPrefix + ":players"
	sessionsKey    = keyPrefix + ":sessions"
	connectedAtKey = keyPrefix + ":connected_at"
)

// Each script touches all three hashes so every operation is atomic.
// KEYS: players, sessions, connected_at
var (
	connectScript = redis.NewScript(`
local other = redis.call('HGET', KEYS[2], ARGV[2])
if other and other ~= ARGV[1] then
  redis.call('HDEL', KEYS[1], other)
  redis.call('HDEL', KEYS[3], other)
end
local prev = redis.call('HGET', KEYS[1], ARGV[1])
if prev == ARGV[2] then
  return ''
end
local superseded = ''
if prev then
  superseded = prev
  redis.call('HDEL', KEYS[2], prev)
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
return superseded
`)

	disconnectScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], ARGV[1])
if not prev then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], prev)
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

	disconnectSessionScript = redis.NewScript(`
local username = redis.call('HGET', KEYS[2], ARGV[1])
if not username then
  return ''
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], username)
redis.call('HDEL', KEYS[3], username)
return username
`)
)

// RedisRegistry shares presence between server instances
type RedisRegistry struct {
	client *redis.Client
	clock  clock.Clock
}

// Ensure RedisRegistry implements Registry
var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry creates a registry on an existing client
func NewRedisRegistry(client *redis.Client, clk clock.Clock) *RedisRegistry {
	return &RedisRegistry{client: client, clock: clk}
}

func (r *RedisRegistry) keys() []string {
	return []string{playersKey, sessionsKey, connectedAtKey}
}

func (r *RedisRegistry) Connect(ctx context.Context, username string, sessionID model.SessionID) (model.SessionID, error) {
	now := strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
	superseded, err := connectScript.Run(ctx, r.client, r.keys(), username, string(sessionID), now).Text()
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", username, err)
	}
	return model.SessionID(superseded), nil
}

func (r *RedisRegistry) Disconnect(ctx context.Context, username string) (bool, error) {
	removed, err := disconnectScript.Run(ctx, r.client, r.keys(), username).Int()
	if err != nil {
		return false, fmt.Errorf("disconnect %s: %w", username, err)
	}
	return removed == 1, nil
}

func (r *RedisRegistry) DisconnectBySession(ctx context.Context, sessionID model.SessionID) (string, bool, error) {
	username, err := disconnectSessionScript.Run(ctx, r.client, r.keys(), string(sessionID)).Text()
	if err != nil {
		return "", false, fmt.Errorf("disconnect session %s: %w", sessionID, err)
	}
	return username, username != "", nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, username string) (bool, error) {
	ok, err := r.client.HExists(ctx, playersKey, username).Result()
	if err != nil {
		return false, fmt.Errorf("check %s online: %w", username, err)
	}
	return ok, nil
}

func (r *RedisRegistry) ListOnline(ctx context.Context) ([]model.Session, error) {
	return r.ListOnlineExcept(ctx, "")
}

func (r *RedisRegistry) ListOnlineExcept(ctx context.Context, username string) ([]model.Session, error) {
	var players, connectedAt *redis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		players = pipe.HGetAll(ctx, playersKey)
		connectedAt = pipe.HGetAll(ctx, connectedAtKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list online: %w", err)
	}

	times := connectedAt.Val()
	result := make([]model.Session, 0, len(players.Val()))
	for name, session := range players.Val() {
		if name == username {
			continue
		}
		s := model.Session{ID: model.SessionID(session), Username: name}
		if ms, err := strconv.ParseInt(times[name], 10, 64); err == nil {
			s.ConnectedAt = time.UnixMilli(ms).UTC()
		}
		result = append(result, s)
	}

	sortSessions(result)
	return result, nil
}
