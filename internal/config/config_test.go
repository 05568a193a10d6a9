package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Server.Port != def.Server.Port || cfg.Logging.Level != def.Logging.Level {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadDecodesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[server]\nport = 9091\n\n[logging]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9091 {
		t.Fatalf("expected port override 9091, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level override debug, got %q", cfg.Logging.Level)
	}
	if cfg.Store.MaxOpenConns != Default().Store.MaxOpenConns {
		t.Fatalf("expected unset keys to keep their defaults, got %+v", cfg.Store)
	}
	if cfg.Server.RequestTimeoutSecs != Default().Server.RequestTimeoutSecs {
		t.Fatalf("expected unset request_timeout_secs to keep its default, got %+v", cfg.Server)
	}
	if cfg.Server.ReceiveBufferBytes != Default().Server.ReceiveBufferBytes {
		t.Fatalf("expected unset receive_buffer_bytes to keep its default, got %+v", cfg.Server)
	}
}

func TestLoadDecodesConnectionTunables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[server]\nrequest_timeout_secs = 45\nreceive_buffer_bytes = 131072\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.RequestTimeoutSecs != 45 {
		t.Fatalf("expected request_timeout_secs override 45, got %d", cfg.Server.RequestTimeoutSecs)
	}
	if cfg.Server.ReceiveBufferBytes != 131072 {
		t.Fatalf("expected receive_buffer_bytes override 131072, got %d", cfg.Server.ReceiveBufferBytes)
	}
}

func TestLoadPMLogOverridesLevel(t *testing.T) {
	t.Setenv("PM_LOG", "warn")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected PM_LOG to override level, got %q", cfg.Logging.Level)
	}
}

func TestResolvePathHonorsPMConfigEnv(t *testing.T) {
	t.Setenv("PM_CONFIG", "/tmp/custom-config.toml")
	if got := ResolvePath("/some/dir"); got != "/tmp/custom-config.toml" {
		t.Fatalf("expected PM_CONFIG override, got %q", got)
	}
}

func TestDurationHelpers(t *testing.T) {
	sc := ServerConfig{HeartbeatSeconds: 30, HeartbeatTimeout: 60, ShutdownGrace: 5}
	if sc.HeartbeatInterval().Seconds() != 30 {
		t.Fatalf("expected 30s heartbeat interval, got %v", sc.HeartbeatInterval())
	}
	if sc.HeartbeatTimeoutDuration().Seconds() != 60 {
		t.Fatalf("expected 60s heartbeat timeout, got %v", sc.HeartbeatTimeoutDuration())
	}
	if sc.ShutdownGraceDuration().Seconds() != 5 {
		t.Fatalf("expected 5s shutdown grace, got %v", sc.ShutdownGraceDuration())
	}
	sc.RequestTimeoutSecs = 45
	if sc.RequestTimeoutDuration().Seconds() != 45 {
		t.Fatalf("expected 45s request timeout, got %v", sc.RequestTimeoutDuration())
	}
}
