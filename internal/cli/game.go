package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/model"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game commands",
	}

	cmd.AddCommand(newGameShowCmd())
	cmd.AddCommand(newGameMoveCmd())
	cmd.AddCommand(newGameEndCmd())
	cmd.AddCommand(newGameJoinCmd())

	return cmd
}

func gamePath(raw string, suffix ...string) (string, error) {
	id, err := model.ParseGameID(raw)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/api/v1/games/%s", id)
	if len(suffix) > 0 {
		path += "/" + strings.Join(suffix, "/")
	}
	return path, nil
}

func newGameShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <game-id>",
		Short: "Show a game's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePath(args[0])
			if err != nil {
				return err
			}

			var result model.GameSession
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}

			output(cmd).Print(&result)
			return nil
		},
	}
}

func newGameMoveCmd() *cobra.Command {
	var fen string

	cmd := &cobra.Command{
		Use:   "move <game-id> <uci-move>",
		Short: "Play a move, e.g. e2e4 or e7e8q",
		Long: `Play a move in UCI notation.

The current position is fetched from the server unless --fen is given.
The resulting position and SAN are computed locally and submitted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePath(args[0])
			if err != nil {
				return err
			}

			if fen == "" {
				var current model.GameSession
				if err := client.Get(cmd.Context(), path, &current); err != nil {
					return err
				}
				fen = current.CurrentFEN
			}

			req, err := planMove(fen, args[1])
			if err != nil {
				return err
			}

			var result model.MoveEvent
			if err := client.Post(cmd.Context(), path+"/moves", req, &result); err != nil {
				return err
			}

			output(cmd).Print(&result)
			return nil
		},
	}

	cmd.Flags().StringVar(&fen, "fen", "", "Position to play from (default: fetched from the server)")

	return cmd
}

func newGameEndCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "end <game-id> <white|black|draw|abandoned>",
		Short: "End a game with a result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePath(args[0], "end")
			if err != nil {
				return err
			}

			var result model.GameSession
			req := request.EndGameRequest{Result: args[1], Reason: reason}
			if err := client.Post(cmd.Context(), path, req, &result); err != nil {
				return err
			}

			output(cmd).Print(&result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for ending the game")

	return cmd
}

func newGameJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <game-id>",
		Short: "Request a game snapshot on your game-state topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePath(args[0], "join")
			if err != nil {
				return err
			}

			var result response.Accepted
			if err := client.Post(cmd.Context(), path, nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}
