package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "chessctl",
		Short: "CLI tool for the chessrelay API",
		Long: `chessctl is a CLI tool for interacting with the chessrelay server.

It covers the HTTP commands (players, invitations, games) and can watch
topics live over WebSocket or Server-Sent Events.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cfg.Output {
			case FormatText, FormatJSON, FormatYAML:
			default:
				return fmt.Errorf("unknown output format %q: must be text, json or yaml", cfg.Output)
			}

			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			// Create HTTP client
			client = NewClient(cfg)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: CHESSCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Bearer token (env: CHESSCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: CHESSCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Username, "user", "u", cfg.Username, "Username for header identity (env: CHESSCTL_USER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Header, "identity-header", cfg.Header, "Identity header name (env: CHESSCTL_IDENTITY_HEADER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newInviteCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func output(cmd *cobra.Command) *Output {
	return NewOutputTo(cfg.Output, cmd.OutOrStdout())
}
