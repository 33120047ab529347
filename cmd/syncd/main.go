package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/client"
	"fintrack/internal/config"
	"fintrack/internal/localstore"
	"fintrack/internal/logger"
	"fintrack/internal/sync"
)

// syncd is the client-side sync daemon. It owns the embedded local store,
// watches connectivity against the server's health endpoint, and runs sync
// cycles on startup, on local mutations, and on connectivity recovery.
func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.SyncUserID == "" {
		return fmt.Errorf("SYNC_USER_ID is required")
	}
	if cfg.SyncToken == "" {
		return fmt.Errorf("SYNC_TOKEN is required")
	}

	store, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warnf("closing local store: %v", closeErr)
		}
	}()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	syncClient := client.NewSyncClient(cfg.ServerURL, cfg.SyncToken, httpClient)

	engine := sync.NewEngine(store, syncClient, cfg.SyncUserID)
	runner := sync.NewRunner(engine, cfg.DebounceDelay)

	// Local mutations schedule a sync without blocking the caller.
	store.SetNotifier(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Start(ctx)
	defer runner.Stop()

	// Startup sync: reconcile whatever happened while the process was down.
	runner.Trigger()

	// Connectivity watcher: probe the server health endpoint and report
	// transitions to the runner. Recovery triggers a debounced sync.
	go func() {
		ticker := time.NewTicker(cfg.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				err := syncClient.Ping(probeCtx)
				probeCancel()
				runner.SetOnline(err == nil)
			}
		}
	}()

	log.Infow("sync daemon started",
		"server_url", cfg.ServerURL,
		"user_id", cfg.SyncUserID,
		"local_db", cfg.LocalDBPath,
		"probe_interval", cfg.ProbeInterval,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sync daemon")
	return nil
}
