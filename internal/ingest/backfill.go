package ingest

import (
	"context"
	"time"
)

// backfillCycle re-fetches details for matches stored before per-player rows
// existed and fills in their match_players. Bounded per run and throttled
// with an extra inter-call sleep on top of the shared governor, since it
// competes with live ingestion for the request budget.
func (p *Pipeline) backfillCycle(ctx context.Context) {
	if !p.cfg.FetchMatchDetails {
		p.logger.Warn().Msg("Backfill requires FETCH_MATCH_DETAILS; skipping")
		return
	}

	remaining, err := p.store.CountMatchesNeedingPlayers(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Backfill count failed")
		return
	}
	if remaining == 0 {
		return
	}

	ids, err := p.store.MatchIDsNeedingPlayers(ctx, p.cfg.BackfillMaxPerRun)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Backfill candidate query failed")
		return
	}
	p.logger.Info().
		Int("candidates", len(ids)).
		Int("remaining", remaining).
		Msg("Backfill cycle started")

	var filled, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := p.governor.Acquire(ctx); err != nil {
			break
		}
		p.metrics.ProviderCalls.WithLabelValues("matches").Inc()
		details, err := p.provider.MatchDetails(ctx, id)
		if err != nil {
			p.metrics.ProviderErrors.WithLabelValues("matches").Inc()
			p.logger.Warn().Err(err).Int64("match_id", id).Msg("Backfill fetch failed")
			failed++
			continue
		}

		_, players, err := p.parser.ParseDetails(details)
		if err != nil {
			// Leave the match row alone; it stays a candidate until the
			// provider returns complete player data for it.
			failed++
			continue
		}

		if err := p.store.ReplaceMatchPlayers(context.WithoutCancel(ctx), id, players); err != nil {
			p.logger.Error().Err(err).Int64("match_id", id).Msg("Backfill save failed")
			failed++
			continue
		}
		filled++

		if !sleepCtx(ctx, p.cfg.BackfillSleep) {
			break
		}
	}

	p.metrics.CyclesTotal.WithLabelValues("backfill").Inc()
	p.logger.Info().
		Int("filled", filled).
		Int("failed", failed).
		Msg("Backfill cycle done")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
