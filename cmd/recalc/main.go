// Command recalc rebuilds every aggregate table from the stored matches and
// exits. Run it after changing the duration gate or repairing match rows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/config"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/logging"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

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

	start := time.Now()
	if err := st.RecalculateAll(ctx); err != nil {
		logger.Error().Err(err).Msg("Aggregate recalculation failed")
		os.Exit(1)
	}

	count, err := st.MatchCount(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Post-rebuild match count failed")
	}
	logger.Info().
		Int("matches", count).
		Dur("took", time.Since(start)).
		Msg("Aggregate recalculation done")
}
