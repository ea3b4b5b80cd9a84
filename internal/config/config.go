package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wacrm/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// RecentWindowHours bounds the "recent chats" query window.
	RecentWindowHours int `toml:"recent_window_hours"`
	// ChatMessagesLimit is the default page size for per-chat message reads.
	ChatMessagesLimit int `toml:"chat_messages_limit"`
	// MediaFetchTimeoutSecs bounds a single media download from the source.
	MediaFetchTimeoutSecs int `toml:"media_fetch_timeout_secs"`
}

// Default returns a config with all knobs at their defaults.
func Default() *Config {
	return &Config{
		RecentWindowHours:     24,
		ChatMessagesLimit:     50,
		MediaFetchTimeoutSecs: 30,
	}
}

// RecentWindow returns the recent-chats window as a duration.
func (c *Config) RecentWindow() time.Duration {
	hours := c.RecentWindowHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// MediaFetchTimeout returns the media fetch bound as a duration.
func (c *Config) MediaFetchTimeout() time.Duration {
	secs := c.MediaFetchTimeoutSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// MessagesLimit returns the default per-chat page size.
func (c *Config) MessagesLimit() int {
	if c.ChatMessagesLimit <= 0 {
		return 50
	}
	return c.ChatMessagesLimit
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
