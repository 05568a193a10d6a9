// Package config loads and hot-reloads the daemon's .pm/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the decoded shape of .pm/config.toml, with defaults filled in
// by Load for any table or key the file omits.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	BindAddress          string `toml:"bind_address"`
	Port                 int    `toml:"port"`
	HeartbeatSeconds     int    `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeout     int    `toml:"heartbeat_timeout_seconds"`
	RequestTimeoutSecs   int    `toml:"request_timeout_secs"`
	ReceiveBufferBytes   int    `toml:"receive_buffer_bytes"`
	ShutdownGrace        int    `toml:"shutdown_grace_seconds"`
	MaxConnections       int    `toml:"max_connections"`
	QueueDepth           int    `toml:"subscriber_queue_depth"`
}

type StoreConfig struct {
	Path                  string `toml:"path"`
	MaxOpenConns          int    `toml:"max_open_conns"`
	IdempotencyRetentionS int64  `toml:"idempotency_retention_seconds"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindAddress:        "127.0.0.1",
			Port:               0,
			HeartbeatSeconds:   30,
			HeartbeatTimeout:   60,
			RequestTimeoutSecs: 30,
			ReceiveBufferBytes: 65536,
			ShutdownGrace:      5,
			MaxConnections:     64,
			QueueDepth:         100,
		},
		Store: StoreConfig{
			Path:                  filepath.Join(".pm", "data.db"),
			MaxOpenConns:          0,
			IdempotencyRetentionS: 3600,
		},
		Logging: LoggingConfig{
			Level: "info",
			Path:  filepath.Join(".pm", "logs", "app.log"),
		},
	}
}

// ResolvePath returns the config file path: PM_CONFIG if set, otherwise
// .pm/config.toml under dir.
func ResolvePath(dir string) string {
	if v := os.Getenv("PM_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(dir, ".pm", "config.toml")
}

// Load decodes the config file at path over the defaults. A missing file is
// not an error: the defaults stand alone for a first run. PM_LOG, if set,
// overrides logging.level after decode.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	if v := os.Getenv("PM_LOG"); v != "" {
		cfg.Logging.Level = v
	}
	return cfg, nil
}

func (c ServerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c ServerConfig) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

func (c ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func (c ServerConfig) ShutdownGraceDuration() time.Duration {
	return time.Duration(c.ShutdownGrace) * time.Second
}
