package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
)

var errNoTopics = errors.New("no topics given: pass topic names, --mine or --game")

// topicFlags collects topic selections shared by watch and events
type topicFlags struct {
	mine    bool
	players bool
	games   []string
}

func (f *topicFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.mine, "mine", false, "Subscribe to all of your own topics (requires --user)")
	cmd.Flags().BoolVar(&f.players, "players", false, "Subscribe to the global roster topic")
	cmd.Flags().StringSliceVar(&f.games, "game", nil, "Subscribe to a game's moves and status (repeatable)")
}

func (f *topicFlags) resolve(args []string) ([]string, error) {
	topics := append([]string(nil), args...)

	if f.mine {
		if cfg.Username == "" {
			return nil, errors.New("--mine requires --user")
		}
		for _, suffix := range []string{
			pubsub.UserInvitations,
			pubsub.UserInvitationSent,
			pubsub.UserInvitationRefused,
			pubsub.UserGameCreated,
			pubsub.UserGameState,
			pubsub.UserErrors,
			pubsub.UserPlayers,
		} {
			topics = append(topics, pubsub.UserTopic(cfg.Username, suffix))
		}
	}
	if f.players {
		topics = append(topics, pubsub.PlayersTopic)
	}
	for _, raw := range f.games {
		id, err := model.ParseGameID(raw)
		if err != nil {
			return nil, err
		}
		topics = append(topics,
			pubsub.GameTopic(id, pubsub.GameMoves),
			pubsub.GameTopic(id, pubsub.GameStatus))
	}

	if len(topics) == 0 {
		return nil, errNoTopics
	}
	return topics, nil
}
