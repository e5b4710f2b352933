package request

import "github.com/mcoot/chessrelay/internal/model"

// CreatePlayerRequest is the request body for ensuring a player account.
// Username may be omitted, in which case the caller's identity is used.
type CreatePlayerRequest struct {
	Username string `json:"username"`
}

// SendInvitationRequest is the request body for inviting another player
type SendInvitationRequest struct {
	ReceiverUsername string `json:"receiver_username"`
}

// RespondInvitationRequest is the request body for answering an invitation
type RespondInvitationRequest struct {
	Accepted bool `json:"accepted"`
}

// SubmitMoveRequest is the request body for submitting a move
type SubmitMoveRequest struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Piece       string      `json:"piece"`
	Promotion   string      `json:"promotion,omitempty"`
	FENAfter    string      `json:"fen_after"`
	SAN         string      `json:"san,omitempty"`
	PlayerColor model.Color `json:"player_color"`
}

// ToSubmission attaches the game id from the path
func (r SubmitMoveRequest) ToSubmission(gameID model.GameID) model.MoveSubmission {
	return model.MoveSubmission{
		GameID:      gameID,
		From:        r.From,
		To:          r.To,
		Piece:       r.Piece,
		Promotion:   r.Promotion,
		FENAfter:    r.FENAfter,
		SAN:         r.SAN,
		PlayerColor: r.PlayerColor,
	}
}

// EndGameRequest is the request body for ending a game
type EndGameRequest struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}
