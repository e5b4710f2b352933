package sqldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
	"github.com/mcoot/chessrelay/internal/storage/storagetest"
)

type SQLiteStorageSuite struct {
	storagetest.Suite
}

func TestSQLiteStorageSuite(t *testing.T) {
	s := new(SQLiteStorageSuite)
	s.New = func() storage.Storage {
		cfg := Config{
			Driver: DriverSQLite,
			DSN:    filepath.Join(s.T().TempDir(), "chessrelay.db"),
		}
		store, err := Open(context.Background(), cfg)
		s.Require().NoError(err)
		return store
	}
	suite.Run(t, s)
}

func (s *SQLiteStorageSuite) TestMovesRoundTripOptionalFields() {
	white, _ := s.Storage.CreatePlayer(s.Ctx, "bob")
	black, _ := s.Storage.CreatePlayer(s.Ctx, "alice")
	game := model.NewGameSession(*white, *black, s.Now)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, game))

	move := &model.MoveEvent{
		From:        "e7",
		To:          "e8",
		Piece:       "P",
		Promotion:   "q",
		FENAfter:    "4Q3/8/8/8/8/8/8/4K2k b - - 0 1",
		SAN:         "e8=Q",
		PlayerColor: model.White,
		CreatedAt:   s.Now,
	}
	s.Require().NoError(s.Storage.AppendMove(s.Ctx, game.ID, move))

	loaded, err := s.Storage.LoadGame(s.Ctx, game.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Moves, 1)
	s.Equal("q", loaded.Moves[0].Promotion)
	s.Equal("e8=Q", loaded.Moves[0].SAN)
	s.Equal(s.Now, loaded.Moves[0].CreatedAt)
}

func TestOpenMigratesIdempotently(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "chessrelay.db")}

	first, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = first.CreatePlayer(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	p, err := second.FindPlayerByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func TestRebind(t *testing.T) {
	pg := dialect{driver: DriverPostgres}
	lite := dialect{driver: DriverSQLite}

	q := `UPDATE games SET status = ? WHERE id = ? AND status = ?`
	assert.Equal(t, `UPDATE games SET status = $1 WHERE id = $2 AND status = $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
