package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/match"
)

func TestMatchIDsNeedingPlayers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Match 1 with players, matches 2 and 3 without.
	rec := rankedRecord(1, time.Now().Unix(), 1800, true, []int{1, 2, 3, 4, 5}, []int{6, 7, 8, 9, 10})
	require.NoError(t, s.SaveMatch(ctx, rec, []match.Player{{HeroID: 1, PlayerSlot: 0, IsRadiant: true}}))
	for id := int64(2); id <= 3; id++ {
		rec := rankedRecord(id, time.Now().Unix(), 1800, true, []int{1, 2, 3, 4, 5}, []int{6, 7, 8, 9, 10})
		require.NoError(t, s.SaveMatch(ctx, rec, nil))
	}

	// Short matches never carry player rows and must not surface as
	// backfill candidates.
	short := rankedRecord(4, time.Now().Unix(), 600, true, []int{1, 2, 3, 4, 5}, []int{6, 7, 8, 9, 10})
	require.NoError(t, s.SaveMatch(ctx, short, nil))

	count, err := s.CountMatchesNeedingPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ids, err := s.MatchIDsNeedingPlayers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)

	ids, err = s.MatchIDsNeedingPlayers(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestReplaceMatchPlayersIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := rankedRecord(5, time.Now().Unix(), 1800, true, []int{1, 2, 3, 4, 5}, []int{6, 7, 8, 9, 10})
	require.NoError(t, s.SaveMatch(ctx, rec, nil))

	players := []match.Player{
		{HeroID: 1, PlayerSlot: 0, IsRadiant: true},
		{HeroID: 6, PlayerSlot: 128, IsRadiant: false},
	}
	require.NoError(t, s.ReplaceMatchPlayers(ctx, 5, players))
	require.NoError(t, s.ReplaceMatchPlayers(ctx, 5, players))

	assert.Equal(t, 2, tableCount(t, s, "match_players"))

	count, err := s.CountMatchesNeedingPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
