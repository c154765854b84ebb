package ingest

import (
	"context"
	"time"
)

// runCleanup enforces the two retention bounds in order: first evict matches
// older than the retention window, then trim the oldest matches past the
// size cap. Each phase rebuilds the aggregate tables from the survivors, so
// the second phase sees the counts left by the first.
func (p *Pipeline) runCleanup(ctx context.Context) error {
	start := time.Now()

	oldIDs, err := p.store.OldMatchIDs(ctx, p.cfg.DaysToKeep)
	if err != nil {
		return err
	}
	if len(oldIDs) > 0 {
		p.logger.Info().
			Int("matches", len(oldIDs)).
			Int("days_to_keep", p.cfg.DaysToKeep).
			Msg("Evicting aged matches")
		if err := p.store.EvictAndRebuild(context.WithoutCancel(ctx), oldIDs); err != nil {
			return err
		}
		p.metrics.RebuildsTotal.Inc()
	}

	count, err := p.store.MatchCount(ctx)
	if err != nil {
		return err
	}
	if excess := count - p.cfg.MaxMatches; excess > 0 {
		oldest, err := p.store.OldestMatchIDs(ctx, excess)
		if err != nil {
			return err
		}
		p.logger.Info().
			Int("matches", len(oldest)).
			Int("cap", p.cfg.MaxMatches).
			Msg("Evicting matches over the size cap")
		if err := p.store.EvictAndRebuild(context.WithoutCancel(ctx), oldest); err != nil {
			return err
		}
		p.metrics.RebuildsTotal.Inc()
		count -= len(oldest)
	}

	p.metrics.MatchesRetained.Set(float64(count))
	p.metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	p.logger.Info().
		Int("retained", count).
		Dur("took", time.Since(start)).
		Msg("Cleanup pass done")
	return nil
}
