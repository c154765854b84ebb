package match

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
)

func intPtr(v int) *int { return &v }

// detailsFixture builds a valid 10-player payload: heroes 1-5 Radiant
// (slots 0-4), heroes 6-10 Dire (slots 128-132).
func detailsFixture() *opendota.MatchDetails {
	d := &opendota.MatchDetails{
		MatchID:     12345,
		StartTime:   1700000000,
		Duration:    intPtr(1800),
		Patch:       intPtr(54),
		AvgRankTier: intPtr(55),
		GameMode:    intPtr(22),
		LobbyType:   intPtr(7),
		RadiantWin:  true,
	}
	for i := 0; i < 5; i++ {
		d.Players = append(d.Players, opendota.PlayerDetails{
			HeroID: i + 1, PlayerSlot: intPtr(i),
		})
	}
	for i := 0; i < 5; i++ {
		d.Players = append(d.Players, opendota.PlayerDetails{
			HeroID: i + 6, PlayerSlot: intPtr(128 + i),
		})
	}
	return d
}

func newTestParser(extraJunk ...int) *Parser {
	return NewParser(extraJunk, zerolog.Nop())
}

func TestParseDetailsHappyPath(t *testing.T) {
	rec, players, err := newTestParser().ParseDetails(detailsFixture())
	require.NoError(t, err)

	assert.Equal(t, int64(12345), rec.MatchID)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.RadiantHeroes)
	assert.Equal(t, []int{6, 7, 8, 9, 10}, rec.DireHeroes)
	assert.True(t, rec.RadiantWin)
	assert.Equal(t, "very_high", rec.RankBucket)
	require.NotNil(t, rec.Patch)
	assert.Equal(t, "54", *rec.Patch)

	require.Len(t, players, 10)
	assert.True(t, players[0].IsRadiant)
	assert.False(t, players[5].IsRadiant)
	assert.Equal(t, 128, players[5].PlayerSlot)
}

func TestParseDetailsRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*opendota.MatchDetails)
		reason string
	}{
		{
			name:   "nine players",
			mutate: func(d *opendota.MatchDetails) { d.Players = d.Players[:9] },
			reason: RejectPlayerCount,
		},
		{
			name:   "missing hero",
			mutate: func(d *opendota.MatchDetails) { d.Players[3].HeroID = 0 },
			reason: RejectMissingHero,
		},
		{
			name:   "bad team split",
			mutate: func(d *opendota.MatchDetails) { d.Players[4].PlayerSlot = intPtr(131) },
			reason: RejectTeamSplit,
		},
		{
			name:   "nil player slot",
			mutate: func(d *opendota.MatchDetails) { d.Players[0].PlayerSlot = nil },
			reason: RejectTeamSplit,
		},
		{
			name:   "duplicate hero across teams",
			mutate: func(d *opendota.MatchDetails) { d.Players[9].HeroID = 1 },
			reason: RejectDuplicateHero,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := detailsFixture()
			tc.mutate(d)
			_, _, err := newTestParser().ParseDetails(d)
			var rej *RejectError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tc.reason, rej.Reason)
			assert.Equal(t, int64(12345), rej.MatchID)
		})
	}
}

func TestExtractPlayerFiltersJunkItems(t *testing.T) {
	d := detailsFixture()
	// Slot order: tango (junk), blink, empty, ward (junk), BKB, tp (junk).
	d.Players[0].Item0 = 45
	d.Players[0].Item1 = 1
	d.Players[0].Item2 = 0
	d.Players[0].Item3 = 42
	d.Players[0].Item4 = 116
	d.Players[0].Item5 = 145

	_, players, err := newTestParser().ParseDetails(d)
	require.NoError(t, err)

	items := players[0].Items
	require.NotNil(t, items[0])
	require.NotNil(t, items[1])
	assert.Equal(t, 1, *items[0])
	assert.Equal(t, 116, *items[1])
	for i := 2; i < 6; i++ {
		assert.Nil(t, items[i], "slot %d should be padded nil", i)
	}
}

func TestExtraJunkItemsMerged(t *testing.T) {
	d := detailsFixture()
	d.Players[0].Item0 = 999
	d.Players[0].Item1 = 1

	_, players, err := newTestParser(999).ParseDetails(d)
	require.NoError(t, err)

	items := players[0].Items
	require.NotNil(t, items[0])
	assert.Equal(t, 1, *items[0])
	assert.Nil(t, items[1])
}

func TestBucketForTier(t *testing.T) {
	tests := []struct {
		tier *int
		want string
	}{
		{nil, "unknown"},
		{intPtr(0), "unknown"},
		{intPtr(1), "low"},
		{intPtr(20), "low"},
		{intPtr(21), "mid"},
		{intPtr(35), "mid"},
		{intPtr(36), "high"},
		{intPtr(50), "high"},
		{intPtr(51), "very_high"},
		{intPtr(55), "very_high"},
		{intPtr(60), "very_high"},
		{intPtr(61), "immortal"},
		{intPtr(85), "immortal"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, BucketForTier(tc.tier))
	}
}
