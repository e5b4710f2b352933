package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/corentings/chess/v2"
)

// GameID uniquely identifies a game session
type GameID int64

func (id GameID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseGameID parses a positive decimal game id
func ParseGameID(s string) (GameID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "game_id", Reason: "must be a positive integer"}
	}
	return GameID(n), nil
}

// Color is a side of the board
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Valid reports whether c names a side
func (c Color) Valid() bool {
	return c == White || c == Black
}

// Opposite returns the other side
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// GameStatus is the lifecycle state of a game session
type GameStatus string

const (
	GameInProgress GameStatus = "IN_PROGRESS"
	GameWhiteWon   GameStatus = "WHITE_WON"
	GameBlackWon   GameStatus = "BLACK_WON"
	GameDraw       GameStatus = "DRAW"
	GameAbandoned  GameStatus = "ABANDONED"
)

// IsTerminal reports whether the game has finished
func (s GameStatus) IsTerminal() bool {
	return s != GameInProgress
}

// StatusForResult maps an end-of-game result token to a terminal status.
// Unrecognised tokens end the game as abandoned.
func StatusForResult(result string) GameStatus {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return GameWhiteWon
	case "black":
		return GameBlackWon
	case "draw":
		return GameDraw
	default:
		return GameAbandoned
	}
}

// StartingFEN is the board encoding every new game starts from
var StartingFEN = chess.NewGame().Position().String()

// GameSession is the live state of one game between two players
type GameSession struct {
	ID          GameID      `json:"id"`
	White       Player      `json:"white_player"`
	Black       Player      `json:"black_player"`
	Status      GameStatus  `json:"status"`
	CurrentTurn Color       `json:"current_turn"`
	CurrentFEN  string      `json:"current_fen"`
	Moves       []MoveEvent `json:"moves"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewGameSession creates an in-progress game at the starting position
func NewGameSession(white, black Player, now time.Time) *GameSession {
	return &GameSession{
		White:       white,
		Black:       black,
		Status:      GameInProgress,
		CurrentTurn: White,
		CurrentFEN:  StartingFEN,
		Moves:       []MoveEvent{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PlayerFor returns the username playing color, or "" for an unknown colour
func (g *GameSession) PlayerFor(color Color) string {
	switch color {
	case White:
		return g.White.Username
	case Black:
		return g.Black.Username
	}
	return ""
}

// MoveEvent is one sequenced, immutable move within a game
type MoveEvent struct {
	GameID      GameID    `json:"game_id"`
	MoveNumber  int       `json:"move_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Piece       string    `json:"piece"`
	Promotion   string    `json:"promotion,omitempty"`
	FENAfter    string    `json:"fen_after"`
	SAN         string    `json:"san,omitempty"`
	PlayerColor Color     `json:"player_color"`
	CreatedAt   time.Time `json:"created_at"`
}

// ApplyMove records an accepted move on the session: the board moves to
// the move's resulting position and the turn passes to the other side.
func (g *GameSession) ApplyMove(move MoveEvent) {
	g.Moves = append(g.Moves, move)
	g.CurrentFEN = move.FENAfter
	g.CurrentTurn = g.CurrentTurn.Opposite()
	g.UpdatedAt = move.CreatedAt
}
