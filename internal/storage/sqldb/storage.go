// Package sqldb stores players, invitations and games in SQLite or
// PostgreSQL through database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/storage"
)

// Config holds SQL connection settings
type Config struct {
	// Driver is "sqlite" or "postgres"
	Driver string
	// DSN is a file path (sqlite) or a connection URL (postgres)
	DSN string

	MaxOpenConns int
}

// DefaultConfig returns a local SQLite database
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          "chessrelay.db",
		MaxOpenConns: 10,
	}
}

// Storage is a database/sql implementation of the storage interface
type Storage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Open connects to the database and applies pending migrations
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if d.driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	if err := Migrate(d.driver, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}

	return &Storage{db: db, dialect: d, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// q rebinds a query for the active dialect
func (s *Storage) q(query string) string {
	return s.dialect.rebind(query)
}

// inTx runs fn in a transaction, rolling back on error
func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, username string) (*model.Player, error) {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO players (username, created_at) VALUES (?, ?) ON CONFLICT (username) DO NOTHING`),
		username, toMillis(s.now()))
	if err != nil {
		return nil, err
	}
	return s.FindPlayerByUsername(ctx, username)
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, username, created_at FROM players WHERE id = ?`), int64(id))
	return scanPlayer(row)
}

func (s *Storage) FindPlayerByUsername(ctx context.Context, username string) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, username, created_at FROM players WHERE username = ?`), username)
	return scanPlayer(row)
}

func scanPlayer(row *sql.Row) (*model.Player, error) {
	var (
		p         model.Player
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.Username, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// Invitation operations

const invitationColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*model.Invitation, error) {
	var (
		inv                  model.Invitation
		createdAt, updatedAt int64
	)
	if err := row.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrInvitationNotFound
		}
		return nil, err
	}
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return &inv, nil
}

func (s *Storage) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO invitations (sender_id, receiver_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		int64(inv.SenderID), int64(inv.ReceiverID), string(inv.Status), toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return err
	}
	inv.ID = model.InvitationID(id)
	return nil
}

func (s *Storage) GetInvitation(ctx context.Context, id model.InvitationID) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`), int64(id))
	return scanInvitation(row)
}

func (s *Storage) TransitionInvitation(ctx context.Context, id model.InvitationID, from, to model.InvitationStatus, at time.Time) (*model.Invitation, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE invitations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		string(to), toMillis(at), int64(id), string(from))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, model.ErrInvitationNotPending
	}
	return inv, nil
}

func (s *Storage) ListPendingInvitations(ctx context.Context, receiverID model.PlayerID) ([]*model.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+invitationColumns+` FROM invitations WHERE receiver_id = ? AND status = ? ORDER BY id`),
		int64(receiverID), string(model.InvitationPending))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]*model.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.GameSession) error {
	for _, id := range []model.PlayerID{game.White.ID, game.Black.ID} {
		if _, err := s.GetPlayer(ctx, id); err != nil {
			return err
		}
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO games (white_player_id, black_player_id, status, current_turn, current_fen, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		int64(game.White.ID), int64(game.Black.ID), string(game.Status), string(game.CurrentTurn),
		game.CurrentFEN, toMillis(game.CreatedAt), toMillis(game.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return err
	}
	game.ID = model.GameID(id)
	if game.Moves == nil {
		game.Moves = []model.MoveEvent{}
	}
	return nil
}

// lockGameStatus reads a game's status inside tx, holding a write lock
// on the row where the dialect supports it
func (s *Storage) lockGameStatus(ctx context.Context, tx *sql.Tx, gameID model.GameID) (model.GameStatus, model.Color, error) {
	var status, turn string
	err := tx.QueryRowContext(ctx,
		s.q(`SELECT status, current_turn FROM games WHERE id = ?`+s.dialect.lockSuffix), int64(gameID),
	).Scan(&status, &turn)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", model.ErrGameNotFound
	}
	return model.GameStatus(status), model.Color(turn), err
}

func (s *Storage) AppendMove(ctx context.Context, gameID model.GameID, move *model.MoveEvent) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		status, turn, err := s.lockGameStatus(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if status != model.GameInProgress {
			return model.ErrGameNotInProgress
		}

		var count int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM moves WHERE game_id = ?`), int64(gameID)).Scan(&count); err != nil {
			return err
		}

		move.GameID = gameID
		move.MoveNumber = count + 1

		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO moves (game_id, move_number, from_square, to_square, piece, promotion, fen_after, san, player_color, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			int64(gameID), move.MoveNumber, move.From, move.To, move.Piece, move.Promotion,
			move.FENAfter, move.SAN, string(move.PlayerColor), toMillis(move.CreatedAt))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			s.q(`UPDATE games SET current_fen = ?, current_turn = ?, updated_at = ? WHERE id = ?`),
			move.FENAfter, string(turn.Opposite()), toMillis(move.CreatedAt), int64(gameID))
		return err
	})
}

func (s *Storage) SetStatus(ctx context.Context, gameID model.GameID, status model.GameStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE games SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		string(status), toMillis(at), int64(gameID), string(model.GameInProgress))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM games WHERE id = ?`), int64(gameID)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrGameNotFound
	}
	if err != nil {
		return err
	}
	return model.ErrGameNotInProgress
}

func (s *Storage) LoadGame(ctx context.Context, gameID model.GameID) (*model.GameSession, error) {
	var (
		game                 model.GameSession
		whiteID, blackID     int64
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, white_player_id, black_player_id, status, current_turn, current_fen, created_at, updated_at
			FROM games WHERE id = ?`), int64(gameID),
	).Scan(&game.ID, &whiteID, &blackID, &game.Status, &game.CurrentTurn, &game.CurrentFEN, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	game.CreatedAt = fromMillis(createdAt)
	game.UpdatedAt = fromMillis(updatedAt)

	white, err := s.GetPlayer(ctx, model.PlayerID(whiteID))
	if err != nil {
		return nil, err
	}
	black, err := s.GetPlayer(ctx, model.PlayerID(blackID))
	if err != nil {
		return nil, err
	}
	game.White, game.Black = *white, *black

	moves, err := s.loadMoves(ctx, gameID)
	if err != nil {
		return nil, err
	}
	game.Moves = moves
	return &game, nil
}

func (s *Storage) loadMoves(ctx context.Context, gameID model.GameID) ([]model.MoveEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT move_number, from_square, to_square, piece, promotion, fen_after, san, player_color, created_at
			FROM moves WHERE game_id = ? ORDER BY move_number`), int64(gameID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	moves := make([]model.MoveEvent, 0)
	for rows.Next() {
		m := model.MoveEvent{GameID: gameID}
		var createdAt int64
		if err := rows.Scan(&m.MoveNumber, &m.From, &m.To, &m.Piece, &m.Promotion, &m.FENAfter, &m.SAN, &m.PlayerColor, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(createdAt)
		moves = append(moves, m)
	}
	return moves, rows.Err()
}
