package model

import (
	"strconv"
	"time"
)

// InvitationID uniquely identifies an invitation
type InvitationID int64

func (id InvitationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseInvitationID parses a positive decimal invitation id
func ParseInvitationID(s string) (InvitationID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "invitation_id", Reason: "must be a positive integer"}
	}
	return InvitationID(n), nil
}

// InvitationStatus is the lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRefused  InvitationStatus = "REFUSED"
)

// IsTerminal reports whether the status can no longer change
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationAccepted || s == InvitationRefused
}

// Invitation is a proposal from one player to another to start a game.
// It is created Pending and resolves exactly once.
type Invitation struct {
	ID         InvitationID     `json:"id"`
	SenderID   PlayerID         `json:"sender_id"`
	ReceiverID PlayerID         `json:"receiver_id"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// InvitationView is an invitation with both parties resolved, as sent to clients
type InvitationView struct {
	ID        InvitationID     `json:"id"`
	Sender    Player           `json:"sender"`
	Receiver  Player           `json:"receiver"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewInvitationView combines an invitation with its sender and receiver
func NewInvitationView(inv *Invitation, sender, receiver Player) InvitationView {
	return InvitationView{
		ID:        inv.ID,
		Sender:    sender,
		Receiver:  receiver,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
	}
}

// RespondResult is the outcome of answering an invitation. Game is set
// only when the invitation was accepted.
type RespondResult struct {
	Invitation InvitationView `json:"invitation"`
	Game       *GameSession   `json:"game,omitempty"`
}
