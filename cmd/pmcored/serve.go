package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pmcore/pmcored/internal/broadcast"
	"github.com/pmcore/pmcored/internal/config"
	"github.com/pmcore/pmcored/internal/lockfile"
	"github.com/pmcore/pmcored/internal/logging"
	"github.com/pmcore/pmcored/internal/rpc"
	"github.com/pmcore/pmcored/internal/storage/sqlite"
)

// serve loads configuration, opens the store, and runs the RPC server until
// an OS signal or the context is canceled. The returned int is the process
// exit code to use when err is non-nil; it is meaningless otherwise.
func serve(ctx context.Context) (int, error) {
	wd, err := os.Getwd()
	if err != nil {
		return exitRuntimeError, err
	}

	pmDir := filepath.Join(wd, ".pm")
	configPath := flagConfigPath
	if configPath == "" {
		configPath = config.ResolvePath(wd)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return exitConfigError, err
	}
	applyFlagOverrides(&cfg)

	logPath := cfg.Logging.Path
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(wd, logPath)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return exitConfigError, fmt.Errorf("create log directory: %w", err)
	}
	logger, levelVar := logging.New(logging.Options{Path: logPath, Level: cfg.Logging.Level})

	if watcher, err := config.WatchLevel(configPath, logger, func(level string) {
		logging.SetLevel(levelVar, level)
	}); err == nil {
		defer watcher.Close()
	}

	if err := os.MkdirAll(pmDir, 0o755); err != nil {
		return exitConfigError, fmt.Errorf("create %s: %w", pmDir, err)
	}
	guard, err := lockfile.Acquire(filepath.Join(pmDir, "daemon.lock"))
	if err == lockfile.ErrLocked {
		return exitBindError, fmt.Errorf("daemon already running in %s", pmDir)
	}
	if err != nil {
		return exitConfigError, fmt.Errorf("acquire lock: %w", err)
	}
	defer guard.Release()

	dbPath := cfg.Store.Path
	if flagDBPath != "" {
		dbPath = flagDBPath
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return exitDatabaseError, fmt.Errorf("create database directory: %w", err)
	}

	store, err := sqlite.Open(ctx, dbPath, cfg.Store.MaxOpenConns)
	if err != nil {
		return exitDatabaseError, fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	b := broadcast.New(cfg.Server.QueueDepth)

	srv := rpc.NewServer(rpc.ServerConfig{
		BindAddress:          cfg.Server.BindAddress,
		Port:                 cfg.Server.Port,
		HeartbeatInterval:    cfg.Server.HeartbeatInterval(),
		HeartbeatTimeout:     cfg.Server.HeartbeatTimeoutDuration(),
		RequestTimeout:       cfg.Server.RequestTimeoutDuration(),
		FrameLimit:           uint32(cfg.Server.ReceiveBufferBytes),
		QueueDepth:           cfg.Server.QueueDepth,
		MaxConnections:       cfg.Server.MaxConnections,
		ShutdownGrace:        cfg.Server.ShutdownGraceDuration(),
		IdempotencyRetention: time.Duration(cfg.Store.IdempotencyRetentionS) * time.Second,
	}, store, b, logger)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(runCtx) }()

	select {
	case <-srv.WaitReady():
	case err := <-errCh:
		return exitBindError, err
	}

	if err := <-errCh; err != nil {
		return exitRuntimeError, err
	}
	logger.Info("daemon shut down")
	return exitOK, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagBindAddress != "" {
		cfg.Server.BindAddress = flagBindAddress
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
}
