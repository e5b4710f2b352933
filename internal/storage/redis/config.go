package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// TTL settings. Zero keeps records forever.
	InvitationTTL time.Duration
	GameTTL       time.Duration

	// MaxTxRetries bounds optimistic transaction retries under contention
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		InvitationTTL: 24 * time.Hour,
		GameTTL:       7 * 24 * time.Hour,
		MaxTxRetries:  16,
	}
}
