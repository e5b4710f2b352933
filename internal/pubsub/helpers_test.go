package pubsub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcoot/chessrelay/internal/model"
)

// recorder collects delivered messages for assertions
type recorder struct {
	mu       sync.Mutex
	messages []Message
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) handle(msg Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// waitFor blocks until n messages have arrived in total
func (r *recorder) waitFor(t *testing.T, n int) []Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.snapshot()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return r.snapshot()
}

// closed reports whether ch has been closed, without blocking
func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func moveEvent(gameID model.GameID, n int) model.MoveBroadcast {
	return model.MoveBroadcast{MoveEvent: model.MoveEvent{
		GameID:      gameID,
		MoveNumber:  n,
		From:        "e2",
		To:          "e4",
		Piece:       "P",
		FENAfter:    "fen",
		PlayerColor: model.White,
	}}
}

func decodeMove(t *testing.T, msg Message) model.MoveEvent {
	t.Helper()
	var move model.MoveEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &move))
	return move
}
