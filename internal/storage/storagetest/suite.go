// Package storagetest holds the behaviour every storage backend must share.
// Backend packages embed Suite in their own test suites.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
)

// Suite runs the storage contract against the Storage returned by New.
// New is called once per test.
type Suite struct {
	suite.Suite
	New func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

func (s *Suite) SetupTest() {
	s.Storage = s.New()
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
}

func (s *Suite) createPlayer(username string) *model.Player {
	p, err := s.Storage.CreatePlayer(s.Ctx, username)
	s.Require().NoError(err)
	return p
}

func (s *Suite) createGame() *model.GameSession {
	white := s.createPlayer("bob")
	black := s.createPlayer("alice")
	game := model.NewGameSession(*white, *black, s.Now)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, game))
	return game
}

func (s *Suite) move(from, to, fen string, color model.Color) *model.MoveEvent {
	return &model.MoveEvent{
		From:        from,
		To:          to,
		Piece:       "p",
		FENAfter:    fen,
		PlayerColor: color,
		CreatedAt:   s.Now,
	}
}

// Player tests

func (s *Suite) TestCreateAndFindPlayer() {
	created := s.createPlayer("alice")
	s.NotZero(created.ID)
	s.Equal("alice", created.Username)

	found, err := s.Storage.FindPlayerByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	byID, err := s.Storage.GetPlayer(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("alice", byID.Username)
}

func (s *Suite) TestCreatePlayerIsIdempotent() {
	first := s.createPlayer("alice")
	second := s.createPlayer("alice")
	s.Equal(first.ID, second.ID)
}

func (s *Suite) TestPlayerNotFound() {
	_, err := s.Storage.FindPlayerByUsername(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	s.ErrorIs(err, model.ErrNotFound)

	_, err = s.Storage.GetPlayer(s.Ctx, 9999)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

// Invitation tests

func (s *Suite) TestCreateAndGetInvitation() {
	alice := s.createPlayer("alice")
	bob := s.createPlayer("bob")

	inv := &model.Invitation{
		SenderID:   alice.ID,
		ReceiverID: bob.ID,
		Status:     model.InvitationPending,
		CreatedAt:  s.Now,
	}
	s.Require().NoError(s.Storage.CreateInvitation(s.Ctx, inv))
	s.NotZero(inv.ID)

	got, err := s.Storage.GetInvitation(s.Ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal(alice.ID, got.SenderID)
	s.Equal(bob.ID, got.ReceiverID)
	s.Equal(model.InvitationPending, got.Status)
}

func (s *Suite) TestGetInvitationNotFound() {
	_, err := s.Storage.GetInvitation(s.Ctx, 4242)
	s.ErrorIs(err, model.ErrInvitationNotFound)
}

func (s *Suite) TestTransitionInvitation() {
	alice := s.createPlayer("alice")
	bob := s.createPlayer("bob")
	inv := &model.Invitation{SenderID: alice.ID, ReceiverID: bob.ID, Status: model.InvitationPending, CreatedAt: s.Now}
	s.Require().NoError(s.Storage.CreateInvitation(s.Ctx, inv))

	later := s.Now.Add(time.Minute)
	updated, err := s.Storage.TransitionInvitation(s.Ctx, inv.ID, model.InvitationPending, model.InvitationAccepted, later)
	s.Require().NoError(err)
	s.Equal(model.InvitationAccepted, updated.Status)

	_, err = s.Storage.TransitionInvitation(s.Ctx, inv.ID, model.InvitationPending, model.InvitationRefused, later)
	s.ErrorIs(err, model.ErrInvitationNotPending)
	s.ErrorIs(err, model.ErrInvalidState)

	got, err := s.Storage.GetInvitation(s.Ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal(model.InvitationAccepted, got.Status)
}

func (s *Suite) TestTransitionInvitationNotFound() {
	_, err := s.Storage.TransitionInvitation(s.Ctx, 77, model.InvitationPending, model.InvitationRefused, s.Now)
	s.ErrorIs(err, model.ErrInvitationNotFound)
}

func (s *Suite) TestTransitionInvitationResolvesOnceUnderRace() {
	alice := s.createPlayer("alice")
	bob := s.createPlayer("bob")
	inv := &model.Invitation{SenderID: alice.ID, ReceiverID: bob.ID, Status: model.InvitationPending, CreatedAt: s.Now}
	s.Require().NoError(s.Storage.CreateInvitation(s.Ctx, inv))

	targets := []model.InvitationStatus{model.InvitationAccepted, model.InvitationRefused}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Storage.TransitionInvitation(s.Ctx, inv.ID, model.InvitationPending, to, s.Now)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, model.ErrInvitationNotPending)
		}
	}
	s.Equal(1, succeeded)
}

func (s *Suite) TestListPendingInvitations() {
	alice := s.createPlayer("alice")
	bob := s.createPlayer("bob")
	carol := s.createPlayer("carol")

	first := &model.Invitation{SenderID: alice.ID, ReceiverID: bob.ID, Status: model.InvitationPending, CreatedAt: s.Now}
	second := &model.Invitation{SenderID: carol.ID, ReceiverID: bob.ID, Status: model.InvitationPending, CreatedAt: s.Now}
	other := &model.Invitation{SenderID: bob.ID, ReceiverID: alice.ID, Status: model.InvitationPending, CreatedAt: s.Now}
	for _, inv := range []*model.Invitation{first, second, other} {
		s.Require().NoError(s.Storage.CreateInvitation(s.Ctx, inv))
	}
	_, err := s.Storage.TransitionInvitation(s.Ctx, second.ID, model.InvitationPending, model.InvitationRefused, s.Now)
	s.Require().NoError(err)

	pending, err := s.Storage.ListPendingInvitations(s.Ctx, bob.ID)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(first.ID, pending[0].ID)
}

// Game tests

func (s *Suite) TestCreateAndLoadGame() {
	game := s.createGame()
	s.NotZero(game.ID)

	loaded, err := s.Storage.LoadGame(s.Ctx, game.ID)
	s.Require().NoError(err)
	s.Equal("bob", loaded.White.Username)
	s.Equal("alice", loaded.Black.Username)
	s.Equal(model.GameInProgress, loaded.Status)
	s.Equal(model.White, loaded.CurrentTurn)
	s.Equal(model.StartingFEN, loaded.CurrentFEN)
	s.Empty(loaded.Moves)
}

func (s *Suite) TestLoadGameNotFound() {
	_, err := s.Storage.LoadGame(s.Ctx, 31337)
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestAppendMoveNumbersAndAdvances() {
	game := s.createGame()

	first := s.move("e2", "e4", "fen-1", model.White)
	s.Require().NoError(s.Storage.AppendMove(s.Ctx, game.ID, first))
	s.Equal(1, first.MoveNumber)
	s.Equal(game.ID, first.GameID)

	second := s.move("e7", "e5", "fen-2", model.Black)
	s.Require().NoError(s.Storage.AppendMove(s.Ctx, game.ID, second))
	s.Equal(2, second.MoveNumber)

	loaded, err := s.Storage.LoadGame(s.Ctx, game.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Moves, 2)
	s.Equal(1, loaded.Moves[0].MoveNumber)
	s.Equal("e4", loaded.Moves[0].To)
	s.Equal(2, loaded.Moves[1].MoveNumber)
	s.Equal("fen-2", loaded.CurrentFEN)
	s.Equal(model.White, loaded.CurrentTurn)
}

func (s *Suite) TestAppendMoveUnknownGame() {
	err := s.Storage.AppendMove(s.Ctx, 404, s.move("e2", "e4", "fen", model.White))
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestAppendMoveRejectedOnFinishedGame() {
	game := s.createGame()
	s.Require().NoError(s.Storage.SetStatus(s.Ctx, game.ID, model.GameDraw, s.Now))

	err := s.Storage.AppendMove(s.Ctx, game.ID, s.move("e2", "e4", "fen", model.White))
	s.ErrorIs(err, model.ErrGameNotInProgress)

	loaded, err := s.Storage.LoadGame(s.Ctx, game.ID)
	s.Require().NoError(err)
	s.Empty(loaded.Moves)
	s.Equal(model.StartingFEN, loaded.CurrentFEN)
}

func (s *Suite) TestSetStatusOnlyFromInProgress() {
	game := s.createGame()

	s.Require().NoError(s.Storage.SetStatus(s.Ctx, game.ID, model.GameWhiteWon, s.Now))

	err := s.Storage.SetStatus(s.Ctx, game.ID, model.GameBlackWon, s.Now)
	s.ErrorIs(err, model.ErrGameNotInProgress)

	loaded, err := s.Storage.LoadGame(s.Ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(model.GameWhiteWon, loaded.Status)
}

func (s *Suite) TestSetStatusUnknownGame() {
	err := s.Storage.SetStatus(s.Ctx, 404, model.GameDraw, s.Now)
	s.ErrorIs(err, model.ErrGameNotFound)
}
