package response

import "github.com/mcoot/chessrelay/internal/model"

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
}

// Accepted is returned when the result is delivered on a topic instead
// of in the response body
type Accepted struct {
	Status string `json:"status"`
	Topic  string `json:"topic"`
}

// Invitation is the response for invitation endpoints
type Invitation struct {
	Invitation model.InvitationView `json:"invitation"`
	Game       *model.GameSession   `json:"game,omitempty"`
}

// InvitationFromResult converts a respond result
func InvitationFromResult(r *model.RespondResult) Invitation {
	return Invitation{Invitation: r.Invitation, Game: r.Game}
}
