package main

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/infrastructure/httpapi"
	"duo-lab/infrastructure/push"
	"duo-lab/infrastructure/realtime"
	"duo-lab/infrastructure/storage"
	"duo-lab/internal"
	"duo-lab/runtime/workers"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/afero"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Devserver terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run serves the tables, the object storage, the realtime socket and the push function
// of both participants until a signal is received.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.ServerConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, storage.RowMapper)
	}

	// 3. Object storage
	if err := os.MkdirAll(config.BlobRoot, 0o755); err != nil {
		return exitRuntime, fmt.Errorf("blob root creation failed: %w", err)
	}
	blobs := storage.NewBlobStore(afero.NewBasePathFs(afero.NewOsFs(), config.BlobRoot), []byte(config.SigningSecret), config.PublicURL)

	// 4. Push provider, optional so that the rest can run without credentials
	var provider contract.PushProvider
	if pushConfig, err := push.LoadConfig(); err != nil {
		logger.Warn("Push provider disabled", "error", err)
	} else {
		provider = push.NewOneSignal(logger, pushConfig, &http.Client{Timeout: 10 * time.Second})
	}

	store := storage.NewTableStore(db, logger, config.ChangeBuffer)
	hub := realtime.NewHub(logger, store, config.ChangeBuffer)
	monitor := workers.NewHealthMonitor(logger, config.HealthInterval,
		func(h *domain.NodeHealth) {
			h.Subscriptions = store.Subscriptions()
			h.Backlog = store.Backlog()
		},
		func(h *domain.NodeHealth) { h.Connections = hub.Connections() },
	)
	server := httpapi.NewServer(logger, store, blobs, hub, provider, config.AnonKey).WithHealth(monitor.Latest)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(store, monitor)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. HTTP server
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpapi.Serve(ctx, logger, httpServer); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		stop()
		<-supDone
		return exitRuntime, err
	}

	logger.Info("Shutting down gracefully...")
	<-supDone
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.ServerConfig, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
