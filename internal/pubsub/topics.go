package pubsub

import (
	"errors"
	"strings"

	"github.com/mcoot/chessrelay/internal/model"
)

// PlayersTopic carries the global roster
const PlayersTopic = "/topic/players"

const (
	gameTopicPrefix = "/topic/game/"
	userTopicPrefix = "/topic/user/"
)

// Per-user topic suffixes
const (
	UserInvitations       = "invitations"
	UserInvitationSent    = "invitation-sent"
	UserInvitationRefused = "invitation-refused"
	UserGameCreated       = "game-created"
	UserGameState         = "game-state"
	UserErrors            = "errors"
	UserPlayers           = "players"
)

// Per-game topic suffixes
const (
	GameMoves  = "moves"
	GameStatus = "status"
)

var (
	userSuffixes = map[string]bool{
		UserInvitations:       true,
		UserInvitationSent:    true,
		UserInvitationRefused: true,
		UserGameCreated:       true,
		UserGameState:         true,
		UserErrors:            true,
		UserPlayers:           true,
	}
	gameSuffixes = map[string]bool{
		GameMoves:  true,
		GameStatus: true,
	}
)

// Topic authorization errors
var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrTopicForbidden = errors.New("topic belongs to another player")
)

// GameTopic names a per-game topic
func GameTopic(id model.GameID, suffix string) string {
	return gameTopicPrefix + id.String() + "/" + suffix
}

// UserTopic names a per-user topic
func UserTopic(username, suffix string) string {
	return userTopicPrefix + username + "/" + suffix
}

// TopicInfo describes a parsed topic name
type TopicInfo struct {
	// Owner is set for per-user topics
	Owner string
	// GameID is set for per-game topics
	GameID model.GameID
	Suffix string
}

// ParseTopic recognises the topic names this service publishes on
func ParseTopic(topic string) (TopicInfo, error) {
	if topic == PlayersTopic {
		return TopicInfo{}, nil
	}

	if rest, ok := strings.CutPrefix(topic, userTopicPrefix); ok {
		owner, suffix, found := strings.Cut(rest, "/")
		if !found || owner == "" || !userSuffixes[suffix] {
			return TopicInfo{}, ErrUnknownTopic
		}
		return TopicInfo{Owner: owner, Suffix: suffix}, nil
	}

	if rest, ok := strings.CutPrefix(topic, gameTopicPrefix); ok {
		rawID, suffix, found := strings.Cut(rest, "/")
		if !found || !gameSuffixes[suffix] {
			return TopicInfo{}, ErrUnknownTopic
		}
		id, err := model.ParseGameID(rawID)
		if err != nil || id <= 0 {
			return TopicInfo{}, ErrUnknownTopic
		}
		return TopicInfo{GameID: id, Suffix: suffix}, nil
	}

	return TopicInfo{}, ErrUnknownTopic
}

// AuthorizeSubscribe checks that username may listen on topic. Per-user
// topics are private to their owner; game topics and the roster are open
// to spectators, including anonymous ones.
func AuthorizeSubscribe(topic, username string) error {
	info, err := ParseTopic(topic)
	if err != nil {
		return err
	}
	if info.Owner != "" && info.Owner != username {
		return ErrTopicForbidden
	}
	return nil
}
