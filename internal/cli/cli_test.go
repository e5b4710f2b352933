package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/factory"
	"github.com/mcoot/chessrelay/internal/model"
)

func TestPlanMove(t *testing.T) {
	req, err := planMove(model.StartingFEN, "e2e4")
	require.NoError(t, err)

	assert.Equal(t, "e2", req.From)
	assert.Equal(t, "e4", req.To)
	assert.Equal(t, "P", req.Piece)
	assert.Empty(t, req.Promotion)
	assert.Equal(t, "e4", req.SAN)
	assert.Equal(t, model.White, req.PlayerColor)
	assert.True(t, strings.HasPrefix(req.FENAfter, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"), req.FENAfter)
}

func TestPlanMoveBlackAndPromotion(t *testing.T) {
	req, err := planMove("8/P7/8/8/8/8/8/k6K w - - 0 1", "A7A8Q")
	require.NoError(t, err)
	assert.Equal(t, "Q", req.Promotion)
	assert.Contains(t, req.SAN, "a8=Q")

	req, err = planMove(req.FENAfter, "a1b2")
	require.NoError(t, err)
	assert.Equal(t, model.Black, req.PlayerColor)
	assert.Equal(t, "K", req.Piece)
}

func TestPlanMoveErrors(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move string
	}{
		{"bad position", "not a fen", "e2e4"},
		{"garbage move", model.StartingFEN, "zz"},
		{"illegal move", model.StartingFEN, "e2e5"},
		{"empty square", model.StartingFEN, "e3e4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planMove(tt.fen, tt.move)
			assert.Error(t, err)
		})
	}
}

func TestResolveTopics(t *testing.T) {
	cfg = &Config{Username: "alice"}

	flags := topicFlags{mine: true, players: true, games: []string{"7"}}
	topics, err := flags.resolve([]string{"/topic/user/alice/errors"})
	require.NoError(t, err)

	assert.Contains(t, topics, "/topic/user/alice/invitations")
	assert.Contains(t, topics, "/topic/players")
	assert.Contains(t, topics, "/topic/game/7/moves")
	assert.Contains(t, topics, "/topic/game/7/status")
	assert.Len(t, topics, 1+7+1+2)
}

func TestResolveTopicsErrors(t *testing.T) {
	cfg = &Config{}

	_, err := (&topicFlags{}).resolve(nil)
	assert.ErrorIs(t, err, errNoTopics)

	_, err = (&topicFlags{mine: true}).resolve(nil)
	assert.Error(t, err)

	_, err = (&topicFlags{games: []string{"abc"}}).resolve(nil)
	assert.Error(t, err)
}

func TestOutputFormats(t *testing.T) {
	player := &model.Player{ID: 3, Username: "alice"}

	tests := []struct {
		format string
		want   string
	}{
		{FormatText, "Player: alice (3)"},
		{FormatJSON, `"username": "alice"`},
		{FormatYAML, "username: alice"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewOutputTo(tt.format, &buf).Print(player)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestPrintFrame(t *testing.T) {
	frame := ws.ServerFrame{
		Type:    ws.FrameMessage,
		Topic:   "/topic/game/1/moves",
		Kind:    model.KindMove,
		Payload: json.RawMessage(`{"move_number":1}`),
	}

	var buf bytes.Buffer
	NewOutputTo(FormatText, &buf).PrintFrame(frame)
	assert.Equal(t, "[/topic/game/1/moves] move {\"move_number\":1}\n", buf.String())

	buf.Reset()
	NewOutputTo(FormatJSON, &buf).PrintFrame(frame)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	buf.Reset()
	NewOutputTo(FormatText, &buf).PrintFrame(ws.ErrorFrame("/topic/user/bob/errors",
		model.ErrorNotice{Code: "FORBIDDEN", Message: "topic belongs to another player"}))
	assert.Contains(t, buf.String(), "error: topic belongs to another player (FORBIDDEN)")
}

// cliHarness runs commands in-process against a test application
type cliHarness struct {
	app       *factory.TestApp
	serverURL string
	tokenFile string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	app := factory.NewTestApp()
	server := httptest.NewServer(app.Handler)
	t.Cleanup(func() {
		server.Close()
		_ = app.Close()
	})

	return &cliHarness{
		app:       app,
		serverURL: server.URL,
		tokenFile: filepath.Join(t.TempDir(), "token"),
	}
}

func (h *cliHarness) run(t *testing.T, user string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--server", h.serverURL,
		"--token-file", h.tokenFile,
		"--user", user,
		"--output", "json",
	}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *cliHarness) runJSON(t *testing.T, result any, user string, args ...string) {
	t.Helper()

	out, err := h.run(t, user, args...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), result), out)
}

func TestCommands(t *testing.T) {
	h := newCLIHarness(t)
	ctx := context.Background()

	var health response.Health
	h.runJSON(t, &health, "", "health")
	assert.Equal(t, "ok", health.Status)

	var alice, bob model.Player
	h.runJSON(t, &alice, "alice", "player", "create")
	h.runJSON(t, &bob, "bob", "player", "create")

	_, err := h.app.Presence.Connect(ctx, model.PresenceConnect{Username: "bob"}, "session-bob")
	require.NoError(t, err)

	var inv model.InvitationView
	h.runJSON(t, &inv, "alice", "invite", "send", "bob")
	assert.Equal(t, "bob", inv.Receiver.Username)

	var accepted response.Invitation
	h.runJSON(t, &accepted, "bob", "invite", "accept", inv.ID.String())
	require.NotNil(t, accepted.Game)
	gameID := accepted.Game.ID.String()

	var mv model.MoveEvent
	h.runJSON(t, &mv, "bob", "game", "move", gameID, "d2d4")
	assert.Equal(t, "d4", mv.SAN)

	// Moving from an explicit position skips the lookup
	h.runJSON(t, &mv, "alice", "game", "move", gameID, "g8f6", "--fen", mv.FENAfter)
	assert.Equal(t, "Nf6", mv.SAN)
	assert.Equal(t, 2, mv.MoveNumber)

	var joined response.Accepted
	h.runJSON(t, &joined, "alice", "game", "join", gameID)
	assert.Equal(t, "/topic/user/alice/game-state", joined.Topic)

	var ended model.GameSession
	h.runJSON(t, &ended, "alice", "game", "end", gameID, "white", "--reason", "resigned")
	assert.Equal(t, model.GameWhiteWon, ended.Status)

	out, err := h.run(t, "bob", "game", "show", gameID, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: WHITE_WON")
	assert.Contains(t, out, "Moves: d4 Nf6")
}

func TestCommandErrors(t *testing.T) {
	h := newCLIHarness(t)

	var carol model.Player
	h.runJSON(t, &carol, "carol", "player", "create")

	out, err := h.run(t, "carol", "invite", "send", "nobody")
	require.Error(t, err)
	assert.Contains(t, out, "PLAYER_NOT_FOUND")

	_, err = h.run(t, "carol", "invite", "refuse", "abc")
	assert.Error(t, err)

	_, err = h.run(t, "carol", "game", "show", "0")
	assert.Error(t, err)

	_, err = h.run(t, "carol", "health", "--output", "xml")
	assert.Error(t, err)
}

func TestTokenSave(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run(t, "", "token", "save", "  abc.def.ghi  ")
	require.NoError(t, err)

	data, err := os.ReadFile(h.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "  abc.def.ghi  ", string(data))

	loaded := &Config{TokenFile: h.tokenFile}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "abc.def.ghi", loaded.Token)
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/v1/ws"},
		{"https://chess.example.com/", "wss://chess.example.com/api/v1/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			c := NewClient(&Config{ServerURL: tt.server})
			assert.Equal(t, tt.want, c.WebSocketURL("/api/v1/ws"))
		})
	}
}

func TestMain(m *testing.M) {
	// Keep developer settings out of the tests
	for _, key := range []string{"CHESSCTL_SERVER", "CHESSCTL_TOKEN", "CHESSCTL_TOKEN_FILE", "CHESSCTL_USER", "CHESSCTL_IDENTITY_HEADER", "CHESSCTL_OUTPUT"} {
		if err := os.Unsetenv(key); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	os.Exit(m.Run())
}
