package model

// PresenceConnect registers a player as reachable on the sending connection
type PresenceConnect struct {
	Username string `json:"username"`
}

func (c PresenceConnect) Validate() error {
	if err := validateUsername("username", c.Username); err != nil {
		return err
	}
	return nil
}

// PresenceDisconnect removes a player from the online set
type PresenceDisconnect struct {
	Username string `json:"username"`
}

func (c PresenceDisconnect) Validate() error {
	if err := validateUsername("username", c.Username); err != nil {
		return err
	}
	return nil
}

// PresenceList asks for the online players other than the requester
type PresenceList struct {
	Username string `json:"username"`
}

func (c PresenceList) Validate() error {
	if err := validateUsername("username", c.Username); err != nil {
		return err
	}
	return nil
}

// InviteRequest proposes a game from sender to receiver
type InviteRequest struct {
	SenderUsername   string `json:"sender_username"`
	ReceiverUsername string `json:"receiver_username"`
}

func (c InviteRequest) Validate() error {
	if err := validateUsername("sender_username", c.SenderUsername); err != nil {
		return err
	}
	if err := validateUsername("receiver_username", c.ReceiverUsername); err != nil {
		return err
	}
	if c.SenderUsername == c.ReceiverUsername {
		return &ValidationError{Field: "receiver_username", Reason: "cannot invite yourself"}
	}
	return nil
}

// InviteResponse accepts or refuses a pending invitation
type InviteResponse struct {
	InvitationID InvitationID `json:"invitation_id"`
	Accepted     bool         `json:"accepted"`
}

func (c InviteResponse) Validate() error {
	if c.InvitationID <= 0 {
		return required("invitation_id")
	}
	return nil
}

// PendingInvitationsRequest asks for the invitations awaiting a player's answer
type PendingInvitationsRequest struct {
	Username string `json:"username"`
}

func (c PendingInvitationsRequest) Validate() error {
	if err := validateUsername("username", c.Username); err != nil {
		return err
	}
	return nil
}

// MoveSubmission is a move as asserted by the submitting client. The
// resulting position and notation are trusted as given.
type MoveSubmission struct {
	GameID      GameID `json:"game_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Piece       string `json:"piece"`
	Promotion   string `json:"promotion,omitempty"`
	FENAfter    string `json:"fen_after"`
	SAN         string `json:"san,omitempty"`
	PlayerColor Color  `json:"player_color"`
}

func (c MoveSubmission) Validate() error {
	switch {
	case c.GameID <= 0:
		return required("game_id")
	case c.From == "":
		return required("from")
	case c.To == "":
		return required("to")
	case c.Piece == "":
		return required("piece")
	case c.FENAfter == "":
		return required("fen_after")
	case !c.PlayerColor.Valid():
		return &ValidationError{Field: "player_color", Reason: "must be white or black"}
	}
	return nil
}

// EndGameRequest finishes a game with a result token and a free-form reason
type EndGameRequest struct {
	GameID GameID `json:"game_id"`
	Result string `json:"result"`
	Reason string `json:"reason"`
}

func (c EndGameRequest) Validate() error {
	if c.GameID <= 0 {
		return required("game_id")
	}
	return nil
}

// JoinGameRequest asks for a catch-up snapshot of a game
type JoinGameRequest struct {
	GameID   GameID `json:"game_id"`
	Username string `json:"username"`
}

func (c JoinGameRequest) Validate() error {
	if c.GameID <= 0 {
		return required("game_id")
	}
	if err := validateUsername("username", c.Username); err != nil {
		return err
	}
	return nil
}
