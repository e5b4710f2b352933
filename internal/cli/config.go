package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	// Token is a bearer token for servers running in jwt identity mode
	Token     string
	TokenFile string
	// Username is sent in the identity header for servers in header mode
	Username string
	Header   string
	Output   string
	Verbose  bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("CHESSCTL_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("CHESSCTL_TOKEN"),
		TokenFile: getEnvOrDefault("CHESSCTL_TOKEN_FILE", defaultTokenFile()),
		Username:  os.Getenv("CHESSCTL_USER"),
		Header:    getEnvOrDefault("CHESSCTL_IDENTITY_HEADER", "X-Player-Username"),
		Output:    getEnvOrDefault("CHESSCTL_OUTPUT", "text"),
		Verbose:   false,
	}
}

// LoadToken loads the token from file if not already set
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No token file is fine
		}
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken saves the token to the token file
func (c *Config) SaveToken(token string) error {
	c.Token = token

	dir := filepath.Dir(c.TokenFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.TokenFile, []byte(token), 0600)
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chessctl/token"
	}
	return filepath.Join(home, ".chessctl", "token")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
