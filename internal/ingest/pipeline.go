// Package ingest runs the polling loops that discover matches upstream,
// filter them and hand them to the store, plus the periodic retention pass.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/config"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/match"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/metrics"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/ratelimit"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

// Provider is the upstream surface the pipeline needs
// (satisfied by *opendota.Client).
type Provider interface {
	PublicMatches(ctx context.Context, lessThanID int64) ([]opendota.PublicMatch, error)
	ExplorerMatchIDs(ctx context.Context, gameMode, lobbyType, limit int) ([]int64, error)
	MatchDetails(ctx context.Context, matchID int64) (*opendota.MatchDetails, error)
}

// Storage is the datastore surface the pipeline needs
// (satisfied by *store.Store).
type Storage interface {
	MatchExists(ctx context.Context, matchID int64) (bool, error)
	SaveMatch(ctx context.Context, rec *match.Record, players []match.Player) error
	MatchCount(ctx context.Context) (int, error)
	OldMatchIDs(ctx context.Context, olderThanDays int) ([]int64, error)
	OldestMatchIDs(ctx context.Context, count int) ([]int64, error)
	EvictAndRebuild(ctx context.Context, matchIDs []int64) error
	MatchIDsNeedingPlayers(ctx context.Context, limit int) ([]int64, error)
	CountMatchesNeedingPlayers(ctx context.Context) (int, error)
	ReplaceMatchPlayers(ctx context.Context, matchID int64, players []match.Player) error
}

// Pipeline drives ingestion. Both loops share one rate governor so the
// combined request rate stays under the configured ceiling, and both funnel
// every discovered ID through the same processNew helper.
type Pipeline struct {
	cfg      *config.Config
	governor *ratelimit.Governor
	provider Provider
	store    Storage
	parser   *match.Parser
	metrics  *metrics.Registry
	logger   zerolog.Logger

	lastCleanup time.Time
}

// New wires a pipeline.
func New(cfg *config.Config, gov *ratelimit.Governor, provider Provider, st Storage, parser *match.Parser, reg *metrics.Registry, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		governor: gov,
		provider: provider,
		store:    st,
		parser:   parser,
		metrics:  reg,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Run blocks until ctx is cancelled. It drives the listing loop (which also
// hosts the retention trigger and the optional backfill pass) and, when
// enabled, the explorer query loop.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if p.cfg.UseExplorer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.explorerLoop(ctx)
		}()
	}

	p.listingLoop(ctx)
	wg.Wait()
}

// listingLoop polls /publicMatches on the configured cadence. The retention
// check runs at the top of each tick so it shares the loop's lifecycle.
func (p *Pipeline) listingLoop(ctx context.Context) {
	p.logger.Info().
		Dur("interval", p.cfg.PollInterval()).
		Msg("Listing loop started")

	for {
		cycleStart := time.Now()

		if time.Since(p.lastCleanup) >= p.cfg.CleanupInterval() {
			if err := p.runCleanup(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error().Err(err).Msg("Cleanup pass failed")
			}
			p.lastCleanup = time.Now()
		}

		if ctx.Err() != nil {
			return
		}
		p.listingCycle(ctx)

		if p.cfg.EnableBackfill {
			p.backfillCycle(ctx)
		}

		if !sleepUntilNext(ctx, cycleStart, p.cfg.PollInterval(), p.logger) {
			p.logger.Info().Msg("Listing loop stopped")
			return
		}
	}
}

// listingCycle runs one poll: list recent matches, then fetch/parse/save
// each new ID up to the per-cycle cap.
func (p *Pipeline) listingCycle(ctx context.Context) {
	if err := p.governor.Acquire(ctx); err != nil {
		return
	}
	p.metrics.ProviderCalls.WithLabelValues("publicMatches").Inc()
	summaries, err := p.provider.PublicMatches(ctx, 0)
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("publicMatches").Inc()
		p.logger.Warn().Err(err).Msg("Failed to fetch public matches")
		return
	}
	p.logger.Info().Int("entries", len(summaries)).Msg("publicMatches listed")

	if !p.cfg.FetchMatchDetails {
		// publicMatches carries no usable hero data: the team-composition
		// fields come back zeroed, so without detail fetching there is
		// nothing to ingest.
		p.logger.Warn().Msg("FETCH_MATCH_DETAILS is disabled; no hero data can be collected this cycle")
		return
	}

	var tallies cycleTallies
	if len(summaries) > p.cfg.MaxMatchesPerCycle {
		summaries = summaries[:p.cfg.MaxMatchesPerCycle]
	}
	for i := range summaries {
		if ctx.Err() != nil {
			break
		}
		sum := &summaries[i]
		if sum.MatchID == 0 {
			continue
		}
		exists, err := p.store.MatchExists(ctx, sum.MatchID)
		if err != nil {
			p.logger.Warn().Err(err).Int64("match_id", sum.MatchID).Msg("Existence probe failed")
			continue
		}
		if exists {
			tallies.existing++
			p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipExisting).Inc()
			continue
		}
		tallies.count(p.processNew(ctx, sum.MatchID, sum))
	}

	p.metrics.CyclesTotal.WithLabelValues("listing").Inc()
	p.logger.Info().
		Int("new", tallies.saved).
		Int("existed", tallies.existing).
		Int("incomplete", tallies.incomplete).
		Int("wrong_mode", tallies.wrongMode).
		Int("errors", tallies.failed).
		Msg("Listing cycle done")
}

// explorerLoop discovers match IDs per allowed mode pair through the SQL
// explorer endpoint. Interleaving with the listing loop is safe: both skip
// known IDs and SaveMatch is idempotent.
func (p *Pipeline) explorerLoop(ctx context.Context) {
	p.logger.Info().
		Dur("interval", p.cfg.ExplorerInterval()).
		Msg("Explorer loop started")

	for {
		cycleStart := time.Now()
		p.explorerCycle(ctx)
		if !sleepUntilNext(ctx, cycleStart, p.cfg.ExplorerInterval(), p.logger) {
			p.logger.Info().Msg("Explorer loop stopped")
			return
		}
	}
}

func (p *Pipeline) explorerCycle(ctx context.Context) {
	if !p.cfg.FetchMatchDetails {
		return
	}

	var tallies cycleTallies
	for _, pair := range p.cfg.AllowedModes.Pairs() {
		if ctx.Err() != nil {
			return
		}
		if err := p.governor.Acquire(ctx); err != nil {
			return
		}
		p.metrics.ProviderCalls.WithLabelValues("explorer").Inc()
		ids, err := p.provider.ExplorerMatchIDs(ctx, pair.GameMode, pair.LobbyType, 100)
		if err != nil {
			p.metrics.ProviderErrors.WithLabelValues("explorer").Inc()
			p.logger.Warn().Err(err).
				Int("game_mode", pair.GameMode).
				Int("lobby_type", pair.LobbyType).
				Msg("Explorer query failed")
			continue
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			exists, err := p.store.MatchExists(ctx, id)
			if err != nil {
				p.logger.Warn().Err(err).Int64("match_id", id).Msg("Existence probe failed")
				continue
			}
			if exists {
				tallies.existing++
				p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipExisting).Inc()
				continue
			}
			tallies.count(p.processNew(ctx, id, nil))
		}
	}

	p.metrics.CyclesTotal.WithLabelValues("explorer").Inc()
	p.logger.Info().
		Int("new", tallies.saved).
		Int("existed", tallies.existing).
		Int("incomplete", tallies.incomplete).
		Int("wrong_mode", tallies.wrongMode).
		Int("errors", tallies.failed).
		Msg("Explorer cycle done")
}

type outcome int

const (
	outcomeSaved outcome = iota
	outcomeIncomplete
	outcomeWrongMode
	outcomeFailed
)

type cycleTallies struct {
	saved, existing, incomplete, wrongMode, failed int
}

func (t *cycleTallies) count(o outcome) {
	switch o {
	case outcomeSaved:
		t.saved++
	case outcomeIncomplete:
		t.incomplete++
	case outcomeWrongMode:
		t.wrongMode++
	case outcomeFailed:
		t.failed++
	}
}

// processNew is the shared tail of both discovery paths: fetch the full
// details, parse, filter by mode, fall back to the listing's rank-tier hint
// when the details omit it, and save. Once SaveMatch starts it runs to
// completion even under cancellation, so no partial state leaks.
func (p *Pipeline) processNew(ctx context.Context, matchID int64, hint *opendota.PublicMatch) outcome {
	if err := p.governor.Acquire(ctx); err != nil {
		return outcomeFailed
	}
	p.metrics.ProviderCalls.WithLabelValues("matches").Inc()
	details, err := p.provider.MatchDetails(ctx, matchID)
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("matches").Inc()
		p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipFetchError).Inc()
		p.logger.Warn().Err(err).Int64("match_id", matchID).Msg("Failed to fetch match details")
		return outcomeFailed
	}

	rec, players, err := p.parser.ParseDetails(details)
	if err != nil {
		p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipIncomplete).Inc()
		return outcomeIncomplete
	}

	if !p.cfg.AllowedModes.Contains(rec.GameMode, rec.LobbyType) {
		p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipWrongMode).Inc()
		p.logger.Debug().
			Int64("match_id", matchID).
			Interface("game_mode", rec.GameMode).
			Interface("lobby_type", rec.LobbyType).
			Msg("Match skipped by mode filter")
		return outcomeWrongMode
	}

	// The details endpoint often omits avg_rank_tier even when the listing
	// had it; substitute the hint and recompute the bucket.
	if rec.AvgRankTier == nil && hint != nil && hint.AvgRankTier != nil {
		rec.AvgRankTier = hint.AvgRankTier
		rec.RankBucket = match.BucketForTier(hint.AvgRankTier)
	}

	if err := p.store.SaveMatch(context.WithoutCancel(ctx), rec, players); err != nil {
		if errors.Is(err, store.ErrModeBlocked) {
			p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipWrongMode).Inc()
			return outcomeWrongMode
		}
		p.metrics.MatchesSkipped.WithLabelValues(metrics.SkipSaveError).Inc()
		p.logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to save match")
		return outcomeFailed
	}

	p.metrics.MatchesSaved.Inc()
	return outcomeSaved
}

// sleepUntilNext sleeps for interval minus the elapsed cycle time, clamped
// at zero. Returns false when ctx was cancelled during the sleep.
func sleepUntilNext(ctx context.Context, cycleStart time.Time, interval time.Duration, logger zerolog.Logger) bool {
	elapsed := time.Since(cycleStart)
	wait := interval - elapsed
	if wait < 0 {
		wait = 0
	}
	logger.Info().
		Dur("sleep", wait).
		Dur("cycle_took", elapsed).
		Msg("Sleeping until next cycle")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
