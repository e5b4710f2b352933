package model

// Event is an outbound notice published on a topic. Kind names the
// notice so subscribers can decode the payload.
type Event interface {
	Kind() string
}

// Event kinds
const (
	KindRoster             = "roster"
	KindPlayerList         = "player_list"
	KindInvitation         = "invitation"
	KindInvitationSent     = "invitation_sent"
	KindInvitationRefused  = "invitation_refused"
	KindPendingInvitations = "pending_invitations"
	KindGameCreated        = "game_created"
	KindMove               = "move"
	KindStatus             = "status"
	KindGameState          = "game_state"
	KindError              = "error"
)

// OnlinePlayer is one roster entry
type OnlinePlayer struct {
	ID       PlayerID `json:"id"`
	Username string   `json:"username"`
	Online   bool     `json:"online"`
}

// RosterSnapshot is the full set of online players, broadcast on every
// presence change
type RosterSnapshot struct {
	Players []OnlinePlayer `json:"players"`
}

func (RosterSnapshot) Kind() string { return KindRoster }

// PlayerList is the online set minus the requester, sent privately
type PlayerList struct {
	Players []OnlinePlayer `json:"players"`
}

func (PlayerList) Kind() string { return KindPlayerList }

// InvitationNotice tells the receiver about a new invitation
type InvitationNotice struct {
	Invitation InvitationView `json:"invitation"`
}

func (InvitationNotice) Kind() string { return KindInvitation }

// InvitationSentAck confirms to the sender that the invitation went out
type InvitationSentAck struct {
	Invitation InvitationView `json:"invitation"`
}

func (InvitationSentAck) Kind() string { return KindInvitationSent }

// InvitationRefusedNotice tells the sender the receiver declined
type InvitationRefusedNotice struct {
	Invitation InvitationView `json:"invitation"`
}

func (InvitationRefusedNotice) Kind() string { return KindInvitationRefused }

// PendingInvitations lists invitations still awaiting the player's answer
type PendingInvitations struct {
	Invitations []InvitationView `json:"invitations"`
}

func (PendingInvitations) Kind() string { return KindPendingInvitations }

// GameCreatedNotice is sent to both players when an invitation is accepted
type GameCreatedNotice struct {
	Game *GameSession `json:"game"`
}

func (GameCreatedNotice) Kind() string { return KindGameCreated }

// MoveBroadcast carries a numbered move to the game's subscribers
type MoveBroadcast struct {
	MoveEvent
}

func (MoveBroadcast) Kind() string { return KindMove }

// StatusBroadcast carries the final snapshot of a game and why it ended
type StatusBroadcast struct {
	Game   *GameSession `json:"game"`
	Reason string       `json:"reason"`
}

func (StatusBroadcast) Kind() string { return KindStatus }

// GameStateSnapshot is a private catch-up copy of a game
type GameStateSnapshot struct {
	Game *GameSession `json:"game"`
}

func (GameStateSnapshot) Kind() string { return KindGameState }

// ErrorNotice reports a failed request to the user that made it
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorNotice) Kind() string { return KindError }
