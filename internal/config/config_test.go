package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:         "memory",
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{
			URL:      "redis://localhost:6379",
			PoolSize: 10,
		},
		Presence: BackendConfig{Backend: "memory"},
		PubSub:   BackendConfig{Backend: "memory"},
		Identity: IdentityConfig{
			Mode:   "header",
			Header: "X-Player-Username",
		},
		Game: GameConfig{ColorPolicy: "receiver-white"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestServerAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "header", cfg.Identity.Mode)
	assert.Equal(t, "X-Player-Username", cfg.Identity.Header)
	assert.Equal(t, 168*time.Hour, cfg.Redis.GameTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chessrelay.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 9090
  shutdown_timeout: 5s
storage:
  type: sqlite
  dsn: /var/lib/chessrelay/relay.db
presence:
  backend: redis
pubsub:
  backend: redis
redis:
  url: redis://cache:6379/1
identity:
  mode: jwt
  secret: s3cret
  issuer: auth.example
game:
  color_policy: random
logging:
  level: debug
  format: text
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "jwt", cfg.Identity.Mode)
	assert.Equal(t, "random", cfg.Game.ColorPolicy)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml", nil)
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chessrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))
	t.Setenv("CHESSRELAY_SERVER_PORT", "7070")
	t.Setenv("CHESSRELAY_LOGGING_LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CHESSRELAY_SERVER_PORT", "7070")
	t.Setenv("CHESSRELAY_STORAGE_TYPE", "redis")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "6060"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
	// unchanged flags do not mask the environment
	assert.Equal(t, "redis", cfg.Storage.Type)
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Storage.Type = "cassandra"
	cfg.Identity.Mode = "jwt"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "storage.type", "identity.secret", "logging.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateSQLStorageNeedsDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "storage.dsn")

	cfg.Storage.DSN = "postgres://relay@db/relay?sslmode=disable"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRedisBackendsNeedURL(t *testing.T) {
	cfg := validConfig()
	cfg.PubSub.Backend = "redis"
	cfg.Redis.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "redis.url")
}

func TestValidateBackendNames(t *testing.T) {
	cfg := validConfig()
	cfg.Presence.Backend = "etcd"
	assert.ErrorContains(t, cfg.Validate(), "presence.backend")
}

func TestValidateColorPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Game.ColorPolicy = "sender-white"
	assert.ErrorContains(t, cfg.Validate(), "game.color_policy")
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "logging.level")
}

func TestNewLoggerHonoursFormat(t *testing.T) {
	var buf strings.Builder
	LoggingConfig{Level: "info", Format: "text"}.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	LoggingConfig{Level: "info", Format: "json"}.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	LoggingConfig{Level: "error", Format: "json"}.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyUnknownStorageRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		storage := rapid.StringMatching(`[a-z]{3,12}`).Filter(func(s string) bool {
			return s != "memory" && s != "redis" && s != "sqlite" && s != "postgres"
		}).Draw(t, "storage")
		cfg := validConfig()
		cfg.Storage.Type = storage
		if err := cfg.Validate(); err == nil {
			t.Fatalf("storage type %q accepted", storage)
		}
	})
}
