package invitation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chessrelay/internal/dependencies/mocks"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
	"github.com/mcoot/chessrelay/internal/storage"
	"github.com/mcoot/chessrelay/internal/storage/memory"
	"github.com/mcoot/chessrelay/internal/testutil"
)

// onlineSet is a PresenceChecker backed by a fixed set
type onlineSet map[string]bool

func (o onlineSet) IsOnline(_ context.Context, username string) (bool, error) {
	return o[username], nil
}

// failingGames fails game creation while delegating everything else
type failingGames struct {
	storage.Storage
}

func (f failingGames) CreateGame(context.Context, *model.GameSession) error {
	return errors.New("disk full")
}

type inbox struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (b *inbox) handle(msg pubsub.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *inbox) all() []pubsub.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pubsub.Message(nil), b.messages...)
}

type ControllerSuite struct {
	suite.Suite
	storage    storage.Storage
	router     *pubsub.MemoryRouter
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	online     onlineSet
	controller *Controller
	ctx        context.Context

	alice *model.Player
	bob   *model.Player
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.router = pubsub.NewMemoryRouter(s.clock, testutil.NopLogger())
	s.online = onlineSet{"alice": true, "bob": true}
	s.controller = s.newController(s.storage, ColorReceiverWhite)

	var err error
	s.alice, err = s.storage.CreatePlayer(s.ctx, "alice")
	s.Require().NoError(err)
	s.bob, err = s.storage.CreatePlayer(s.ctx, "bob")
	s.Require().NoError(err)
	_, err = s.storage.CreatePlayer(s.ctx, "carol")
	s.Require().NoError(err)
}

func (s *ControllerSuite) TearDownTest() {
	_ = s.router.Close()
}

func (s *ControllerSuite) newController(store storage.Storage, policy ColorPolicy) *Controller {
	logger := testutil.NopLogger()
	broadcaster := pubsub.NewBroadcaster(s.router, logger)
	games := game.NewController(store, broadcaster, s.clock, logger)
	return NewController(store, s.online, games, broadcaster, s.clock, s.random, policy, logger)
}

func (s *ControllerSuite) watch(topic string) *inbox {
	box := &inbox{}
	_, err := s.router.Subscribe(topic, box.handle)
	s.Require().NoError(err)
	return box
}

func (s *ControllerSuite) waitFor(box *inbox, n int) []pubsub.Message {
	s.Require().Eventually(func() bool { return len(box.all()) >= n }, time.Second, 5*time.Millisecond)
	return box.all()
}

func (s *ControllerSuite) send(sender, receiver string) *model.InvitationView {
	view, err := s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: sender, ReceiverUsername: receiver})
	s.Require().NoError(err)
	return view
}

// Send tests

func (s *ControllerSuite) TestSendNotifiesBothParties() {
	received := s.watch(pubsub.UserTopic("bob", pubsub.UserInvitations))
	sent := s.watch(pubsub.UserTopic("alice", pubsub.UserInvitationSent))

	view := s.send("alice", "bob")
	s.NotZero(view.ID)
	s.Equal(model.InvitationPending, view.Status)
	s.Equal("alice", view.Sender.Username)
	s.Equal("bob", view.Receiver.Username)

	msgs := s.waitFor(received, 1)
	s.Equal(model.KindInvitation, msgs[0].Kind)
	var notice model.InvitationNotice
	s.Require().NoError(json.Unmarshal(msgs[0].Payload, &notice))
	s.Equal(view.ID, notice.Invitation.ID)

	msgs = s.waitFor(sent, 1)
	s.Equal(model.KindInvitationSent, msgs[0].Kind)

	stored, err := s.storage.GetInvitation(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.InvitationPending, stored.Status)
}

func (s *ControllerSuite) TestSendToOfflinePlayerFails() {
	_, err := s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "carol"})
	s.ErrorIs(err, model.ErrPlayerOffline)
	s.ErrorIs(err, model.ErrOffline)

	pending, err := s.storage.ListPendingInvitations(s.ctx, 3)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *ControllerSuite) TestSendToUnknownPlayerFails() {
	_, err := s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "ghost"})
	s.ErrorIs(err, model.ErrPlayerNotFound)

	_, err = s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: "ghost", ReceiverUsername: "bob"})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ControllerSuite) TestSendValidation() {
	_, err := s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: "alice"})
	s.ErrorIs(err, model.ErrValidation)

	_, err = s.controller.Send(s.ctx, model.InviteRequest{SenderUsername: "alice", ReceiverUsername: "alice"})
	s.ErrorIs(err, model.ErrValidation)
}

// Respond tests

func (s *ControllerSuite) TestAcceptCreatesGameWithReceiverAsWhite() {
	aliceGames := s.watch(pubsub.UserTopic("alice", pubsub.UserGameCreated))
	bobGames := s.watch(pubsub.UserTopic("bob", pubsub.UserGameCreated))
	view := s.send("alice", "bob")

	result, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.Require().NoError(err)
	s.Equal(model.InvitationAccepted, result.Invitation.Status)
	s.Require().NotNil(result.Game)
	s.Equal("bob", result.Game.White.Username)
	s.Equal("alice", result.Game.Black.Username)
	s.Equal(model.StartingFEN, result.Game.CurrentFEN)
	s.Equal(model.White, result.Game.CurrentTurn)

	for _, box := range []*inbox{aliceGames, bobGames} {
		msgs := s.waitFor(box, 1)
		var notice model.GameCreatedNotice
		s.Require().NoError(json.Unmarshal(msgs[0].Payload, &notice))
		s.Equal(result.Game.ID, notice.Game.ID)
	}
	s.Zero(s.random.Calls())
}

func (s *ControllerSuite) TestRandomColorPolicy() {
	s.controller = s.newController(s.storage, ColorRandom)
	s.random.QueueIntn(1)
	view := s.send("alice", "bob")

	result, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.Require().NoError(err)
	s.Equal("alice", result.Game.White.Username)
	s.Equal(1, s.random.Calls())
}

func (s *ControllerSuite) TestRefuseNotifiesSenderOnly() {
	refused := s.watch(pubsub.UserTopic("alice", pubsub.UserInvitationRefused))
	bobGames := s.watch(pubsub.UserTopic("bob", pubsub.UserGameCreated))
	view := s.send("alice", "bob")

	result, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: false})
	s.Require().NoError(err)
	s.Equal(model.InvitationRefused, result.Invitation.Status)
	s.Nil(result.Game)

	msgs := s.waitFor(refused, 1)
	s.Equal(model.KindInvitationRefused, msgs[0].Kind)
	time.Sleep(20 * time.Millisecond)
	s.Empty(bobGames.all())
}

func (s *ControllerSuite) TestRespondTwiceIsRejected() {
	view := s.send("alice", "bob")
	_, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: false})
	s.Require().NoError(err)

	_, err = s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.ErrorIs(err, model.ErrInvitationNotPending)
	s.ErrorIs(err, model.ErrInvalidState)
}

func (s *ControllerSuite) TestRespondToUnknownInvitation() {
	_, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: 999, Accepted: true})
	s.ErrorIs(err, model.ErrInvitationNotFound)
}

func (s *ControllerSuite) TestRacingAcceptAndRefuseResolveOnce() {
	for round := 0; round < 20; round++ {
		view := s.send("alice", "bob")

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for _, accepted := range []bool{true, false} {
			wg.Add(1)
			go func(accepted bool) {
				defer wg.Done()
				_, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: accepted})
				results <- err
			}(accepted)
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			s.ErrorIs(err, model.ErrInvalidState)
		}
		s.Equal(1, succeeded)

		stored, err := s.storage.GetInvitation(s.ctx, view.ID)
		s.Require().NoError(err)
		s.True(stored.Status.IsTerminal())
	}
}

func (s *ControllerSuite) TestFailedGameCreationRevertsInvitation() {
	s.controller = s.newController(failingGames{Storage: s.storage}, ColorReceiverWhite)
	view := s.send("alice", "bob")

	_, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: view.ID, Accepted: true})
	s.EqualError(err, "disk full")

	stored, err := s.storage.GetInvitation(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.InvitationPending, stored.Status)
}

// Pending tests

func (s *ControllerSuite) TestPendingListsOnlyUnansweredInvitations() {
	first := s.send("alice", "bob")
	second := s.send("carol", "bob")
	_ = s.send("bob", "alice")

	_, err := s.controller.Respond(s.ctx, model.InviteResponse{InvitationID: first.ID, Accepted: false})
	s.Require().NoError(err)

	pending, err := s.controller.Pending(s.ctx, model.PendingInvitationsRequest{Username: "bob"})
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second.ID, pending[0].ID)
	s.Equal("carol", pending[0].Sender.Username)
}

func (s *ControllerSuite) TestSendPendingPublishes() {
	box := s.watch(pubsub.UserTopic("bob", pubsub.UserInvitations))
	s.send("alice", "bob")
	s.Require().NoError(s.controller.SendPending(s.ctx, model.PendingInvitationsRequest{Username: "bob"}))

	msgs := s.waitFor(box, 2)
	s.Equal(model.KindPendingInvitations, msgs[1].Kind)
	var pending model.PendingInvitations
	s.Require().NoError(json.Unmarshal(msgs[1].Payload, &pending))
	s.Len(pending.Invitations, 1)
}

func (s *ControllerSuite) TestPendingForUnknownPlayer() {
	_, err := s.controller.Pending(s.ctx, model.PendingInvitationsRequest{Username: "ghost"})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func TestParseColorPolicy(t *testing.T) {
	p, err := ParseColorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ColorReceiverWhite, p)

	p, err = ParseColorPolicy("random")
	require.NoError(t, err)
	assert.Equal(t, ColorRandom, p)

	_, err = ParseColorPolicy("black-always")
	assert.Error(t, err)
}
