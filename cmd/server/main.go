package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/chessrelay/internal/api"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/config"
	"github.com/mcoot/chessrelay/internal/factory"
	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	redisstorage "github.com/mcoot/chessrelay/internal/storage/redis"
	"github.com/mcoot/chessrelay/internal/storage/sqldb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chessrelay",
		Short: "Real-time relay for invitations and chess games",
		Long: `chessrelay tracks which players are online, turns invitations into games
and relays moves to every subscriber of a game over WebSocket or SSE.

Settings come from defaults, an optional YAML file, CHESSRELAY_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CHESSRELAY_CONFIG"), "YAML config file (env: CHESSRELAY_CONFIG)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create application factory
	app, err := factory.New(ctx, factoryConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	server := api.NewServer(app.Handler, serverConfig, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		app.RunMaintenance(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		return server.Shutdown(context.WithoutCancel(gctx))
	})

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage.Type),
		slog.String("presence", cfg.Presence.Backend),
		slog.String("pubsub", cfg.PubSub.Backend))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

func factoryConfig(cfg config.Config, logger *slog.Logger) factory.Config {
	redisCfg := redisstorage.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.InvitationTTL = cfg.Redis.InvitationTTL
	redisCfg.GameTTL = cfg.Redis.GameTTL

	sqlCfg := sqldb.Config{
		Driver:       cfg.Storage.Type,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	}

	policy, _ := invitation.ParseColorPolicy(cfg.Game.ColorPolicy)

	return factory.Config{
		Logger:          logger,
		StorageType:     cfg.Storage.Type,
		RedisConfig:     &redisCfg,
		SQLConfig:       &sqlCfg,
		PresenceBackend: cfg.Presence.Backend,
		PubSubBackend:   cfg.PubSub.Backend,
		ColorPolicy:     policy,
		Identity: identity.Config{
			Mode:   cfg.Identity.Mode,
			Header: cfg.Identity.Header,
			Secret: cfg.Identity.Secret,
			Issuer: cfg.Identity.Issuer,
		},
		WebSocket: ws.Config{OriginPatterns: cfg.Server.OriginPatterns},
	}
}
