package matchups

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

type fakeStore struct {
	rows     map[int][]store.OpponentRow
	latest   map[int]time.Time
	replaced int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[int][]store.OpponentRow),
		latest: make(map[int]time.Time),
	}
}

func (f *fakeStore) OpponentRows(ctx context.Context, heroID int) ([]store.OpponentRow, time.Time, error) {
	return f.rows[heroID], f.latest[heroID], nil
}

func (f *fakeStore) ReplaceOpponentRows(ctx context.Context, heroID int, rows []store.OpponentRow) error {
	f.rows[heroID] = rows
	f.latest[heroID] = time.Now()
	f.replaced++
	return nil
}

type fakeFetcher struct {
	entries []opendota.HeroMatchupEntry
	err     error
	calls   int
}

func (f *fakeFetcher) HeroMatchups(ctx context.Context, heroID int) ([]opendota.HeroMatchupEntry, error) {
	f.calls++
	return f.entries, f.err
}

type recordingMetrics struct {
	results []string
}

func (m *recordingMetrics) CacheRead(result string) {
	m.results = append(m.results, result)
}

func newService(fs *fakeStore, ff *fakeFetcher, m Metrics) *Service {
	return New(fs, ff, nil, 24*time.Hour, m, zerolog.Nop())
}

type countingLimiter struct {
	acquired int
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.acquired++
	return ctx.Err()
}

func TestGetRefreshGoesThroughLimiter(t *testing.T) {
	fs := newFakeStore()
	ff := &fakeFetcher{entries: []opendota.HeroMatchupEntry{
		{HeroID: 2, GamesPlayed: 4, Wins: 1},
	}}
	lim := &countingLimiter{}

	svc := New(fs, ff, lim, 24*time.Hour, nil, zerolog.Nop())
	_, err := svc.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.acquired)

	// Fresh hit afterwards costs no governor slot.
	_, err = svc.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.acquired)
}

func TestGetFreshCacheHit(t *testing.T) {
	fs := newFakeStore()
	fs.rows[7] = []store.OpponentRow{
		{OpponentHeroID: 1, Games: 10, Wins: 4, Winrate: 0.4},
		{OpponentHeroID: 2, Games: 10, Wins: 6, Winrate: 0.6},
	}
	fs.latest[7] = time.Now().Add(-time.Hour)
	ff := &fakeFetcher{}
	m := &recordingMetrics{}

	rows, err := newService(fs, ff, m).Get(context.Background(), 7)
	require.NoError(t, err)

	assert.Zero(t, ff.calls, "fresh cache must not reach the provider")
	assert.Equal(t, []string{"hit"}, m.results)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].OpponentHeroID, "sorted by winrate descending")
}

func TestGetMissRefreshes(t *testing.T) {
	fs := newFakeStore()
	ff := &fakeFetcher{entries: []opendota.HeroMatchupEntry{
		{HeroID: 3, GamesPlayed: 200, Wins: 80},
		{HeroID: 4, GamesPlayed: 0, Wins: 0}, // dropped: zero games
		{HeroID: 0, GamesPlayed: 5, Wins: 3}, // dropped: no hero
		{HeroID: 5, GamesPlayed: 3, Wins: 2},
	}}
	m := &recordingMetrics{}

	rows, err := newService(fs, ff, m).Get(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, ff.calls)
	assert.Equal(t, 1, fs.replaced, "refresh persists the new set")
	assert.Equal(t, []string{"miss"}, m.results)

	require.Len(t, rows, 2)
	assert.Equal(t, 5, rows[0].OpponentHeroID)
	assert.Equal(t, 0.6667, rows[0].Winrate)
	assert.Equal(t, 3, rows[1].OpponentHeroID)
	assert.Equal(t, 0.4, rows[1].Winrate)
}

func TestGetExpiredCacheRefetches(t *testing.T) {
	fs := newFakeStore()
	fs.rows[7] = []store.OpponentRow{{OpponentHeroID: 1, Games: 10, Wins: 5, Winrate: 0.5}}
	fs.latest[7] = time.Now().Add(-48 * time.Hour)
	ff := &fakeFetcher{entries: []opendota.HeroMatchupEntry{
		{HeroID: 9, GamesPlayed: 10, Wins: 9},
	}}

	rows, err := newService(fs, ff, nil).Get(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, ff.calls)
	require.Len(t, rows, 1)
	assert.Equal(t, 9, rows[0].OpponentHeroID)
}

func TestGetStaleFallbackWhenProviderDown(t *testing.T) {
	fs := newFakeStore()
	fs.rows[7] = []store.OpponentRow{{OpponentHeroID: 1, Games: 10, Wins: 5, Winrate: 0.5}}
	fs.latest[7] = time.Now().Add(-48 * time.Hour)
	ff := &fakeFetcher{err: errors.New("upstream down")}
	m := &recordingMetrics{}

	rows, err := newService(fs, ff, m).Get(context.Background(), 7)
	require.NoError(t, err, "stale rows beat an error")

	assert.Equal(t, []string{"stale"}, m.results)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].OpponentHeroID)
	assert.Zero(t, fs.replaced, "stale fallback must not overwrite the cache")
}

func TestGetErrorPropagatesWhenNothingCached(t *testing.T) {
	fs := newFakeStore()
	upstream := errors.New("upstream down")
	ff := &fakeFetcher{err: upstream}
	m := &recordingMetrics{}

	_, err := newService(fs, ff, m).Get(context.Background(), 7)
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, []string{"error"}, m.results)
}

func TestGetEmptyFreshCacheTreatedAsMiss(t *testing.T) {
	fs := newFakeStore()
	fs.latest[7] = time.Now() // fresh timestamp, but no rows
	ff := &fakeFetcher{entries: []opendota.HeroMatchupEntry{
		{HeroID: 2, GamesPlayed: 4, Wins: 1},
	}}

	rows, err := newService(fs, ff, nil).Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, ff.calls)
	assert.Len(t, rows, 1)
}
