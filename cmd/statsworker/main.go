package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/config"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/ingest"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/logging"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/match"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/metrics"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/monitor"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/ratelimit"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

func main() {
	bootLogger := logging.New("info", "json")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, store.Options{
		AllowedModes:     cfg.AllowedModes,
		MinMatchDuration: cfg.MinMatchDuration,
		Logger:           logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open datastore")
		os.Exit(1)
	}
	defer st.Close()

	registry := metrics.NewRegistry()
	client := opendota.New(opendota.DefaultBaseURL, cfg.APIKey, logger)
	governor := ratelimit.New(cfg.MaxRequestsPerMinute)
	parser := match.NewParser(cfg.ExtraJunkItems, logger)
	pipeline := ingest.New(cfg, governor, client, st, parser, registry, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.New(cfg.MetricsInterval, logger).Run(ctx)
	}()

	httpErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		httpErrCh <- runDiagServer(ctx, cfg.DiagAddr, st, registry, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("Diagnostics server error")
		}
		stop()
	}

	wg.Wait()
	logger.Info().Msg("Stats worker stopped")
}

func runDiagServer(ctx context.Context, addr string, st *store.Store, registry *metrics.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		count, err := st.MatchCount(r.Context())
		status := "healthy"
		code := http.StatusOK
		if err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"matches":   count,
		})
	})

	mux.Handle("/metrics", registry.Handler())

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Diagnostics server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Diagnostics server shutdown error")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
