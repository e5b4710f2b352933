package game

import (
	"sync"

	"github.com/mcoot/chessrelay/internal/model"
)

// gameLocks hands out one mutex per game. Entries are reference counted
// and dropped when no goroutine holds or waits on them.
type gameLocks struct {
	mu    sync.Mutex
	locks map[model.GameID]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func newGameLocks() *gameLocks {
	return &gameLocks{locks: make(map[model.GameID]*gameLock)}
}

// lock blocks until the caller holds id's mutex and returns its release
func (l *gameLocks) lock(id model.GameID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &gameLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size is the number of games with a live lock entry
func (l *gameLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
