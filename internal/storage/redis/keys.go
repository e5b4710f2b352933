package redis

import (
	"fmt"

	"github.com/mcoot/chessrelay/internal/model"
)

// Key prefix for all stored data
const keyPrefix = "chessrelay"

// sequenceKey returns the counter used to allocate ids for an entity kind
func sequenceKey(kind string) string {
	return fmt.Sprintf("%s:seq:%s", keyPrefix, kind)
}

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%d", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> player_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// invitationKey returns the Redis key for an Invitation
func invitationKey(id model.InvitationID) string {
	return fmt.Sprintf("%s:invitation:%d", keyPrefix, id)
}

// pendingIndexKey returns the SET of pending invitation ids addressed to a player
func pendingIndexKey(receiverID model.PlayerID) string {
	return fmt.Sprintf("%s:idx:pending:%d", keyPrefix, receiverID)
}

// gameKey returns the Redis key for a game record
func gameKey(id model.GameID) string {
	return fmt.Sprintf("%s:game:%d", keyPrefix, id)
}

// movesKey returns the LIST of moves for a game, in move number order
func movesKey(id model.GameID) string {
	return fmt.Sprintf("%s:game:%d:moves", keyPrefix, id)
}
