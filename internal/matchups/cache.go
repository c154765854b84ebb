// Package matchups serves per-hero opponent aggregates from the external
// aggregator through a TTL-bounded persistent cache.
//
// This is a soft cache: when the upstream is down, stale rows are preferred
// over no data for user-facing reads.
package matchups

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

// Fetcher is the provider-side dependency (satisfied by *opendota.Client).
type Fetcher interface {
	HeroMatchups(ctx context.Context, heroID int) ([]opendota.HeroMatchupEntry, error)
}

// CacheStore is the persistence-side dependency (satisfied by *store.Store).
type CacheStore interface {
	OpponentRows(ctx context.Context, heroID int) ([]store.OpponentRow, time.Time, error)
	ReplaceOpponentRows(ctx context.Context, heroID int, rows []store.OpponentRow) error
}

// Limiter gates provider calls behind the shared request governor
// (satisfied by *ratelimit.Governor). May be nil to disable gating.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Metrics receives cache read outcomes; nil-safe via the Noop implementation.
type Metrics interface {
	CacheRead(result string)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) CacheRead(string) {}

// Service resolves opponent aggregates with cache-first semantics.
type Service struct {
	store   CacheStore
	fetch   Fetcher
	limiter Limiter
	ttl     time.Duration
	metrics Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates the cache service. limiter and metrics may be nil.
func New(cs CacheStore, fetch Fetcher, limiter Limiter, ttl time.Duration, metrics Metrics, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Service{
		store:   cs,
		fetch:   fetch,
		limiter: limiter,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With().Str("component", "matchups_cache").Logger(),
		now:     time.Now,
	}
}

// Get returns the hero's opponent aggregates sorted by winrate descending.
//
// Fresh cached rows are returned directly. On expiry (or an empty cache) the
// upstream is queried and the hero's rows are replaced atomically. When the
// upstream fails and stale rows exist, they are returned with a warning;
// with nothing cached the error propagates.
func (s *Service) Get(ctx context.Context, heroID int) ([]store.OpponentRow, error) {
	cached, lastUpdated, err := s.store.OpponentRows(ctx, heroID)
	if err != nil {
		return nil, err
	}

	fresh := !lastUpdated.IsZero() && s.now().Sub(lastUpdated) < s.ttl
	if fresh && len(cached) > 0 {
		s.metrics.CacheRead("hit")
		s.logger.Info().Int("hero_id", heroID).Int("rows", len(cached)).Msg("Opponent cache hit")
		return sortByWinrate(cached), nil
	}

	s.logger.Info().Int("hero_id", heroID).Msg("Opponent cache miss, fetching from provider")

	entries, err := s.refresh(ctx, heroID)
	if err != nil {
		if len(cached) > 0 {
			s.metrics.CacheRead("stale")
			s.logger.Warn().Err(err).
				Int("hero_id", heroID).
				Int("rows", len(cached)).
				Msg("Provider unavailable, returning stale opponent cache")
			return sortByWinrate(cached), nil
		}
		s.metrics.CacheRead("error")
		return nil, err
	}
	s.metrics.CacheRead("miss")

	updatedAt := s.now().UTC().Format(time.RFC3339)
	rows := make([]store.OpponentRow, 0, len(entries))
	for _, e := range entries {
		if e.HeroID == 0 || e.GamesPlayed == 0 {
			continue
		}
		rows = append(rows, store.OpponentRow{
			OpponentHeroID: e.HeroID,
			Games:          e.GamesPlayed,
			Wins:           e.Wins,
			Winrate:        math.Round(float64(e.Wins)/float64(e.GamesPlayed)*10000) / 10000,
			UpdatedAt:      updatedAt,
		})
	}

	if err := s.store.ReplaceOpponentRows(ctx, heroID, rows); err != nil {
		return nil, err
	}
	s.logger.Info().Int("hero_id", heroID).Int("rows", len(rows)).Msg("Opponent cache refreshed")
	return sortByWinrate(rows), nil
}

// refresh fetches from the provider behind the shared governor so cache
// misses count against the same upstream budget as ingestion.
func (s *Service) refresh(ctx context.Context, heroID int) ([]opendota.HeroMatchupEntry, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	return s.fetch.HeroMatchups(ctx, heroID)
}

func sortByWinrate(rows []store.OpponentRow) []store.OpponentRow {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Winrate > rows[j].Winrate
	})
	return rows
}
