package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/pubsub/pubsubtest"
	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	redisstorage "github.com/mcoot/chessrelay/internal/storage/redis"
	"github.com/mcoot/chessrelay/internal/storage/sqldb"
	"github.com/mcoot/chessrelay/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.NoError(s.app.Close())
}

func (s *IntegrationSuite) connect(username string) {
	_, err := s.app.Storage.CreatePlayer(s.ctx, username)
	s.Require().NoError(err)
	_, err = s.app.Presence.Connect(s.ctx, model.PresenceConnect{Username: username}, model.SessionID("session-"+username))
	s.Require().NoError(err)
}

// Test: invitation through to a finished game, observed on the topics
// each participant would subscribe to
func (s *IntegrationSuite) TestCompleteGameFlow() {
	t := s.T()
	roster := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.PlayersTopic)

	// Step 1: Both players come online
	s.connect("alice")
	s.connect("bob")
	msgs := roster.WaitFor(t, 2)
	last := pubsubtest.Decode[model.RosterSnapshot](t, msgs[len(msgs)-1])
	s.Len(last.Players, 2)

	aliceInvites := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.UserTopic("alice", pubsub.UserInvitationSent))
	bobInvites := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.UserTopic("bob", pubsub.UserInvitations))
	aliceGames := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.UserTopic("alice", pubsub.UserGameCreated))
	bobGames := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.UserTopic("bob", pubsub.UserGameCreated))

	// Step 2: Alice invites Bob
	view, err := s.app.InvitationController.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "bob"})
	s.Require().NoError(err)
	s.Equal(model.InvitationPending, view.Status)

	received := pubsubtest.Decode[model.InvitationNotice](t, bobInvites.Last(t))
	s.Equal(view.ID, received.Invitation.ID)
	s.Equal(model.KindInvitationSent, aliceInvites.Last(t).Kind)

	// Step 3: Bob accepts and both learn about the game
	result, err := s.app.InvitationController.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.Require().NoError(err)
	s.Require().NotNil(result.Game)

	for _, inbox := range []*pubsubtest.Inbox{aliceGames, bobGames} {
		created := pubsubtest.Decode[model.GameCreatedNotice](t, inbox.Last(t))
		s.Equal(result.Game.ID, created.Game.ID)
		s.Equal("bob", created.Game.White.Username)
		s.Equal("alice", created.Game.Black.Username)
	}

	gameID := result.Game.ID
	moves := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.GameTopic(gameID, pubsub.GameMoves))
	status := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.GameTopic(gameID, pubsub.GameStatus))

	// Step 4: Two moves are numbered in order
	s.app.MockClock.Advance(time.Second)
	_, err = s.app.GameController.SubmitMove(s.ctx, model.MoveSubmission{
		GameID: gameID, From: "e2", To: "e4", Piece: "P", FENAfter: "fen-1", PlayerColor: model.White,
	})
	s.Require().NoError(err)
	_, err = s.app.GameController.SubmitMove(s.ctx, model.MoveSubmission{
		GameID: gameID, From: "e7", To: "e5", Piece: "p", FENAfter: "fen-2", PlayerColor: model.Black,
	})
	s.Require().NoError(err)

	got := moves.WaitFor(t, 2)
	s.Equal(1, pubsubtest.Decode[model.MoveEvent](t, got[0]).MoveNumber)
	s.Equal(2, pubsubtest.Decode[model.MoveEvent](t, got[1]).MoveNumber)

	// Step 5: The game ends and late moves are refused
	ended, err := s.app.GameController.EndGame(s.ctx, model.EndGameRequest{GameID: gameID, Result: "draw", Reason: "agreement"})
	s.Require().NoError(err)
	s.Equal(model.GameDraw, ended.Status)

	final := pubsubtest.Decode[model.StatusBroadcast](t, status.Last(t))
	s.Equal("agreement", final.Reason)
	s.Len(final.Game.Moves, 2)

	_, err = s.app.GameController.SubmitMove(s.ctx, model.MoveSubmission{
		GameID: gameID, From: "g1", To: "f3", Piece: "N", FENAfter: "fen-3", PlayerColor: model.White,
	})
	s.ErrorIs(err, model.ErrGameNotInProgress)
}

// Test: a spectator joining late gets a private snapshot
func (s *IntegrationSuite) TestSpectatorJoin() {
	t := s.T()
	s.connect("alice")
	s.connect("bob")
	s.connect("carol")

	view, err := s.app.InvitationController.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "bob"})
	s.Require().NoError(err)
	result, err := s.app.InvitationController.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.Require().NoError(err)

	snapshots := pubsubtest.Subscribe(t, s.app.PubSub, pubsub.UserTopic("carol", pubsub.UserGameState))
	_, err = s.app.GameController.JoinGame(s.ctx, model.JoinGameRequest{GameID: result.Game.ID, Username: "carol"})
	s.Require().NoError(err)

	snapshot := pubsubtest.Decode[model.GameStateSnapshot](t, snapshots.Last(t))
	s.Equal(result.Game.ID, snapshot.Game.ID)
	s.Equal(model.GameInProgress, snapshot.Game.Status)
}

// Test: inviting an offline player fails without creating anything
func (s *IntegrationSuite) TestInviteOfflinePlayer() {
	s.connect("alice")
	_, err := s.app.Storage.CreatePlayer(s.ctx, "bob")
	s.Require().NoError(err)

	_, err = s.app.InvitationController.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "bob"})
	s.ErrorIs(err, model.ErrPlayerOffline)

	bob, err := s.app.Storage.FindPlayerByUsername(s.ctx, "bob")
	s.Require().NoError(err)
	pending, err := s.app.Storage.ListPendingInvitations(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Empty(pending)
}

// Test: the random colour policy follows the injected coin
func (s *IntegrationSuite) TestRandomColorPolicy() {
	s.Require().NoError(s.app.Close())
	s.app = NewTestApp(WithColorPolicy(invitation.ColorRandom))
	s.app.MockRandom.QueueIntn(0)

	s.connect("alice")
	s.connect("bob")
	view, err := s.app.InvitationController.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "bob"})
	s.Require().NoError(err)
	result, err := s.app.InvitationController.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.Require().NoError(err)

	s.Equal(1, s.app.MockRandom.Calls())
	s.NotEmpty(result.Game.White.Username)
	s.NotEqual(result.Game.White.Username, result.Game.Black.Username)
}

func TestNewDefaultsToMemory(t *testing.T) {
	app, err := New(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.IsType(t, &pubsub.MemoryRouter{}, app.PubSub)
	assert.NotNil(t, app.Handler)
}

func TestNewWithSQLite(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, Config{
		StorageType: StorageTypeSQLite,
		SQLConfig:   &sqldb.Config{DSN: filepath.Join(t.TempDir(), "relay.db"), MaxOpenConns: 1},
		Logger:      testutil.NopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	player, err := app.Storage.CreatePlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Positive(t, int64(player.ID))
}

func TestNewWithRedisBackends(t *testing.T) {
	mini := miniredis.RunT(t)
	ctx := context.Background()
	cfg := redisstorage.DefaultConfig()
	cfg.URL = "redis://" + mini.Addr()

	app, err := New(ctx, Config{
		StorageType:     StorageTypeRedis,
		RedisConfig:     &cfg,
		PresenceBackend: BackendRedis,
		PubSubBackend:   BackendRedis,
		Logger:          testutil.NopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	roster := pubsubtest.Subscribe(t, app.PubSub, pubsub.PlayersTopic)

	_, err = app.Storage.CreatePlayer(ctx, "alice")
	require.NoError(t, err)
	_, err = app.Presence.Connect(ctx, model.PresenceConnect{Username: "alice"}, "s1")
	require.NoError(t, err)

	snapshot := pubsubtest.Decode[model.RosterSnapshot](t, roster.Last(t))
	require.Len(t, snapshot.Players, 1)
	assert.Equal(t, "alice", snapshot.Players[0].Username)

	online, err := app.Registry.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestNewRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown storage", cfg: Config{StorageType: "cassandra"}},
		{name: "redis storage without config", cfg: Config{StorageType: StorageTypeRedis}},
		{name: "redis presence without config", cfg: Config{PresenceBackend: BackendRedis}},
		{name: "unknown pubsub", cfg: Config{PubSubBackend: "kafka"}},
		{name: "jwt without secret", cfg: Config{Identity: identity.Config{Mode: identity.ModeJWT}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, tt.cfg)
			assert.Error(t, err)
		})
	}
}
