package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/chessrelay/internal/api"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/dependencies/clock"
	"github.com/mcoot/chessrelay/internal/dependencies/random"
	"github.com/mcoot/chessrelay/internal/gateway"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/game"
	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	"github.com/mcoot/chessrelay/internal/services/presence"
	"github.com/mcoot/chessrelay/internal/storage"
	"github.com/mcoot/chessrelay/internal/storage/memory"
	redisstorage "github.com/mcoot/chessrelay/internal/storage/redis"
	"github.com/mcoot/chessrelay/internal/storage/sqldb"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypeSQLite   = sqldb.DriverSQLite
	StorageTypePostgres = sqldb.DriverPostgres
)

// Backend constants for presence and pub/sub
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Real-time fabric
	Registry    presence.Registry
	PubSub      pubsub.Router
	Broadcaster *pubsub.Broadcaster

	// Services
	Presence             *presence.Service
	GameController       *game.Controller
	InvitationController *invitation.Controller
	Dispatcher           *gateway.Dispatcher
	Verifier             identity.Verifier

	// Handler serves the HTTP API and both streaming transports
	Handler http.Handler

	logger  *slog.Logger
	closers []func() error
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis", "sqlite" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings. Required if any of
	// the storage, presence or pub/sub backends is "redis".
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required if StorageType is "sqlite" or "postgres")
	SQLConfig *sqldb.Config
	// PresenceBackend selects the presence registry ("memory" or "redis")
	PresenceBackend string
	// PubSubBackend selects the topic router ("memory" or "redis")
	PubSubBackend string
	// ColorPolicy decides who plays white in accepted invitations
	ColorPolicy invitation.ColorPolicy
	// Identity configures how callers are identified
	Identity identity.Config
	// WebSocket holds WebSocket transport options
	WebSocket ws.Config
}

// New creates a new application with all dependencies wired. The context
// bounds connection setup only.
func New(ctx context.Context, cfg Config) (app *App, err error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var closers []func() error
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	clk := clock.New()
	rnd := random.New()

	// Create storage based on type
	var store storage.Storage
	var redisClient *redis.Client

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect redis storage: %w", err)
		}
		store = redisStore
		redisClient = redisStore.Client()
	case StorageTypeSQLite, StorageTypePostgres:
		sqlCfg := sqldb.DefaultConfig()
		if cfg.SQLConfig != nil {
			sqlCfg = *cfg.SQLConfig
		}
		sqlCfg.Driver = storageType
		sqlStore, err := sqldb.Open(ctx, sqlCfg)
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", storageType, err)
		}
		store = sqlStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis', 'sqlite' or 'postgres'")
	}
	closers = append(closers, store.Close)

	needsRedis := cfg.PresenceBackend == BackendRedis || cfg.PubSubBackend == BackendRedis
	if needsRedis && redisClient == nil {
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when a redis backend is selected")
		}
		redisClient, err = dialRedis(ctx, *cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		closers = append(closers, redisClient.Close)
	}

	var registry presence.Registry
	switch cfg.PresenceBackend {
	case "", BackendMemory:
		registry = presence.NewMemoryRegistry(clk)
	case BackendRedis:
		registry = presence.NewRedisRegistry(redisClient, clk)
	default:
		return nil, fmt.Errorf("invalid PresenceBackend %q: must be 'memory' or 'redis'", cfg.PresenceBackend)
	}

	var router pubsub.Router
	switch cfg.PubSubBackend {
	case "", BackendMemory:
		router = pubsub.NewMemoryRouter(clk, logger)
	case BackendRedis:
		// The router owns a long-lived subscription, so it must not
		// inherit the setup context
		router = pubsub.NewRedisRouter(context.WithoutCancel(ctx), redisClient, clk, logger)
	default:
		return nil, fmt.Errorf("invalid PubSubBackend %q: must be 'memory' or 'redis'", cfg.PubSubBackend)
	}
	// The router must stop before the client it reads from is closed
	closers = append([]func() error{router.Close}, closers...)

	verifier, err := identity.New(cfg.Identity)
	if err != nil {
		return nil, err
	}

	app = newWithDependencies(dependencies{
		store:     store,
		clock:     clk,
		random:    rnd,
		registry:  registry,
		router:    router,
		verifier:  verifier,
		policy:    cfg.ColorPolicy,
		webSocket: cfg.WebSocket,
		logger:    logger,
	})
	app.closers = closers
	return app, nil
}

func dialRedis(ctx context.Context, cfg redisstorage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// dependencies are the leaf components an App is assembled from
type dependencies struct {
	store     storage.Storage
	clock     clock.Clock
	random    random.Random
	registry  presence.Registry
	router    pubsub.Router
	verifier  identity.Verifier
	policy    invitation.ColorPolicy
	webSocket ws.Config
	logger    *slog.Logger
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(deps dependencies) *App {
	broadcaster := pubsub.NewBroadcaster(deps.router, deps.logger)
	presenceService := presence.NewService(deps.registry, deps.store, broadcaster, deps.logger)
	gameController := game.NewController(deps.store, broadcaster, deps.clock, deps.logger)
	invitationController := invitation.NewController(
		deps.store, presenceService, gameController, broadcaster,
		deps.clock, deps.random, deps.policy, deps.logger)
	dispatcher := gateway.NewDispatcher(presenceService, invitationController, gameController, broadcaster, deps.logger)

	handler := api.NewRouter(api.RouterConfig{
		Logger:               deps.logger,
		Verifier:             deps.verifier,
		Storage:              deps.store,
		Presence:             presenceService,
		InvitationController: invitationController,
		GameController:       gameController,
		Dispatcher:           dispatcher,
		PubSub:               deps.router,
		WebSocket:            deps.webSocket,
	})

	return &App{
		Storage:              deps.store,
		Clock:                deps.clock,
		Random:               deps.random,
		Registry:             deps.registry,
		PubSub:               deps.router,
		Broadcaster:          broadcaster,
		Presence:             presenceService,
		GameController:       gameController,
		InvitationController: invitationController,
		Dispatcher:           dispatcher,
		Verifier:             deps.verifier,
		Handler:              handler,
		logger:               deps.logger,
	}
}

// RunMaintenance runs background housekeeping until ctx is done
func (a *App) RunMaintenance(ctx context.Context) {
	if router, ok := a.PubSub.(*pubsub.MemoryRouter); ok {
		router.Run(ctx, pubsub.DefaultCleanupInterval)
		return
	}
	<-ctx.Done()
}

// Close releases every connection the App opened
func (a *App) Close() error {
	return closeAll(a.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
