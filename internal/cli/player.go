package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/model"
)

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player management commands",
	}

	cmd.AddCommand(newPlayerCreateCmd())

	return cmd
}

func newPlayerCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the account for your identity (safe to repeat)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.Player

			req := request.CreatePlayerRequest{Username: cfg.Username}
			if err := client.Post(cmd.Context(), "/api/v1/players", req, &result); err != nil {
				return err
			}

			output(cmd).Print(&result)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored bearer token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save <token>",
		Short: "Store a token issued by the auth service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.SaveToken(args[0]); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			output(cmd).PrintMessage("Token saved to " + cfg.TokenFile)
			return nil
		},
	})

	return cmd
}
