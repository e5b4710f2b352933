package presence

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/model"
)

// MemoryRegistry keeps presence in process. One mutex guards both
// indexes so they never disagree.
type MemoryRegistry struct {
	mu       sync.Mutex
	players  map[string]model.Session
	sessions map[model.SessionID]string
	clock    clock.Clock
}

// Ensure MemoryRegistry implements Registry
var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry(clk clock.Clock) *MemoryRegistry {
	return &MemoryRegistry{
		players:  make(map[string]model.Session),
		sessions: make(map[model.SessionID]string),
		clock:    clk,
	}
}

func (r *MemoryRegistry) Connect(_ context.Context, username string, sessionID model.SessionID) (model.SessionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A session serves one player at a time
	if other, ok := r.sessions[sessionID]; ok && other != username {
		delete(r.players, other)
	}

	var superseded model.SessionID
	if prev, ok := r.players[username]; ok {
		if prev.ID == sessionID {
			return "", nil
		}
		superseded = prev.ID
		delete(r.sessions, prev.ID)
	}

	r.players[username] = model.Session{
		ID:          sessionID,
		Username:    username,
		ConnectedAt: r.clock.Now(),
	}
	r.sessions[sessionID] = username
	return superseded, nil
}

func (r *MemoryRegistry) Disconnect(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.players[username]
	if !ok {
		return false, nil
	}
	delete(r.players, username)
	delete(r.sessions, session.ID)
	return true, nil
}

func (r *MemoryRegistry) DisconnectBySession(_ context.Context, sessionID model.SessionID) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	delete(r.sessions, sessionID)
	delete(r.players, username)
	return username, true, nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[username]
	return ok, nil
}

func (r *MemoryRegistry) ListOnline(ctx context.Context) ([]model.Session, error) {
	return r.ListOnlineExcept(ctx, "")
}

func (r *MemoryRegistry) ListOnlineExcept(_ context.Context, username string) ([]model.Session, error) {
	r.mu.Lock()
	result := make([]model.Session, 0, len(r.players))
	for name, session := range r.players {
		if name != username {
			result = append(result, session)
		}
	}
	r.mu.Unlock()

	sortSessions(result)
	return result, nil
}

func sortSessions(sessions []model.Session) {
	slices.SortFunc(sessions, func(a, b model.Session) int {
		return strings.Compare(a.Username, b.Username)
	})
}
