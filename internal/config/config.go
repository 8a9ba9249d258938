// Package config loads the chatsyncd TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration.
type Config struct {
	// APIBaseURL is the REST endpoint, e.g. "http://host:8000/api/v1".
	APIBaseURL string `toml:"api_base_url"`
	// SocketURL overrides the WebSocket endpoint. When empty it is derived
	// from APIBaseURL by scheme and port substitution.
	SocketURL string `toml:"socket_url"`
	// Token is the bearer token. The CHATSYNC_TOKEN environment variable
	// takes precedence over the file value.
	Token string `toml:"token"`
	// UserID is the authenticated user's id.
	UserID int64 `toml:"user_id"`
	// PageSize is the history page size the server returns.
	PageSize int `toml:"page_size"`
	// ReconnectMin is the delay before a reconnection attempt.
	ReconnectMin Duration `toml:"reconnect_min"`
	// ReconnectMax, when above ReconnectMin, enables capped exponential
	// backoff with jitter. Zero keeps the fixed ReconnectMin delay.
	ReconnectMax Duration `toml:"reconnect_max"`
	// AckTimeout bounds how long an optimistic send may stay unconfirmed
	// before it is surfaced as failed.
	AckTimeout Duration `toml:"ack_timeout"`
	// LogPath is the daemon log file.
	LogPath string `toml:"log_path"`
}

// Default returns the configuration defaults applied before the file is read.
func Default() Config {
	return Config{
		PageSize:     6,
		ReconnectMin: Duration(5 * time.Second),
		AckTimeout:   Duration(15 * time.Second),
		LogPath:      "chatsyncd.log",
	}
}

// Load reads config from the given path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if tok := os.Getenv("CHATSYNC_TOKEN"); tok != "" {
		cfg.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields a running engine cannot do without.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("config: api_base_url is required")
	}
	if c.UserID == 0 {
		return fmt.Errorf("config: user_id is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive")
	}
	if c.ReconnectMin <= 0 {
		return fmt.Errorf("config: reconnect_min must be positive")
	}
	return nil
}

// Duration is a time.Duration that decodes from TOML strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
