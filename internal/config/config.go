// Package config loads server configuration from defaults, an optional
// YAML file, CHESSRELAY_ environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
)

// EnvPrefix prefixes every environment override, e.g. CHESSRELAY_SERVER_PORT
const EnvPrefix = "CHESSRELAY"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// OriginPatterns lists extra browser origins allowed to open WebSockets
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

// Addr returns the "host:port" listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the durable store
type StorageConfig struct {
	// Type is one of memory, redis, sqlite, postgres
	Type string `mapstructure:"type"`
	// DSN is a file path for sqlite and a connection URL for postgres
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig is shared by every redis-backed component
type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	InvitationTTL time.Duration `mapstructure:"invitation_ttl"`
	GameTTL       time.Duration `mapstructure:"game_ttl"`
}

// BackendConfig selects between the in-process and redis implementations
type BackendConfig struct {
	Backend string `mapstructure:"backend"`
}

// IdentityConfig configures caller verification
type IdentityConfig struct {
	Mode   string `mapstructure:"mode"`
	Header string `mapstructure:"header"`
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// GameConfig holds gameplay options
type GameConfig struct {
	ColorPolicy string `mapstructure:"color_policy"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is the log output format: json or text
	Format string `mapstructure:"format"`
}

// Config is the top-level server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Presence BackendConfig  `mapstructure:"presence"`
	PubSub   BackendConfig  `mapstructure:"pubsub"`
	Identity IdentityConfig `mapstructure:"identity"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks every setting and reports all violations at once
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}

	usesRedis := false
	switch c.Storage.Type {
	case "memory":
	case "redis":
		usesRedis = true
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Sprintf("storage.dsn must not be empty for %s storage", c.Storage.Type))
		}
		if c.Storage.MaxOpenConns < 1 {
			errs = append(errs, fmt.Sprintf("storage.max_open_conns must be >= 1, got %d", c.Storage.MaxOpenConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.type must be one of [memory, redis, sqlite, postgres], got %q", c.Storage.Type))
	}

	backends := []struct {
		name string
		cfg  BackendConfig
	}{
		{"presence", c.Presence},
		{"pubsub", c.PubSub},
	}
	for _, b := range backends {
		switch b.cfg.Backend {
		case "memory":
		case "redis":
			usesRedis = true
		default:
			errs = append(errs, fmt.Sprintf("%s.backend must be one of [memory, redis], got %q", b.name, b.cfg.Backend))
		}
	}

	if usesRedis {
		if c.Redis.URL == "" {
			errs = append(errs, "redis.url must not be empty when a redis backend is selected")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, fmt.Sprintf("redis.pool_size must be >= 1, got %d", c.Redis.PoolSize))
		}
	}

	switch c.Identity.Mode {
	case identity.ModeHeader:
		if c.Identity.Header == "" {
			errs = append(errs, "identity.header must not be empty in header mode")
		}
	case identity.ModeJWT:
		if c.Identity.Secret == "" {
			errs = append(errs, "identity.secret must not be empty in jwt mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("identity.mode must be one of [header, jwt], got %q", c.Identity.Mode))
	}

	if _, err := invitation.ParseColorPolicy(c.Game.ColorPolicy); err != nil {
		errs = append(errs, "game.color_policy: "+err.Error())
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, text], got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds the slog logger described by the logging settings
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", s)
	}
	return level, nil
}

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"storage":      "storage.type",
	"storage-dsn":  "storage.dsn",
	"redis-url":    "redis.url",
	"presence":     "presence.backend",
	"pubsub":       "pubsub.backend",
	"identity":     "identity.mode",
	"color-policy": "game.color_policy",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

// RegisterFlags adds the overridable settings to a flag set
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "Listen host")
	fs.Int("port", 8080, "Listen port")
	fs.String("storage", "memory", "Storage backend: memory, redis, sqlite, postgres")
	fs.String("storage-dsn", "", "SQLite path or Postgres URL")
	fs.String("redis-url", "", "Redis URL for redis backends")
	fs.String("presence", "memory", "Presence backend: memory, redis")
	fs.String("pubsub", "memory", "Pub/sub backend: memory, redis")
	fs.String("identity", identity.ModeHeader, "Identity mode: header, jwt")
	fs.String("color-policy", string(invitation.ColorReceiverWhite), "Colour assignment: receiver-white, random")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "json", "Log format: json, text")
}

// Load reads configuration. path may be empty, in which case only
// defaults, environment and flags apply. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	// Environment variable overrides with CHESSRELAY_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.origin_patterns", []string{})

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_open_conns", 10)

	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.invitation_ttl", "24h")
	v.SetDefault("redis.game_ttl", "168h")

	v.SetDefault("presence.backend", "memory")
	v.SetDefault("pubsub.backend", "memory")

	v.SetDefault("identity.mode", identity.ModeHeader)
	v.SetDefault("identity.header", identity.DefaultHeader)
	v.SetDefault("identity.secret", "")
	v.SetDefault("identity.issuer", "")

	v.SetDefault("game.color_policy", string(invitation.ColorReceiverWhite))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
