// Package match defines the canonical match record and the strict parser
// that produces it from raw provider payloads.
package match

// Record is the canonical form of one match, ready for the store.
// Immutable once written; GameMode and LobbyType stay pointers so the
// store's hard mode gate can distinguish "absent" from any real code.
type Record struct {
	MatchID     int64
	StartTime   int64
	Duration    *int
	Patch       *string
	AvgRankTier *int
	RankBucket  string
	GameMode    *int
	LobbyType   *int
	RadiantWin  bool

	// Exactly 5 distinct hero IDs per side, disjoint across sides.
	RadiantHeroes []int
	DireHeroes    []int
}

// Player is one per-player record attached to a match.
// All stats beyond HeroID/PlayerSlot are optional upstream and stay nil
// when absent.
type Player struct {
	HeroID     int
	PlayerSlot int
	IsRadiant  bool

	Lane        *int
	LaneRole    *int
	GPM         *int
	XPM         *int
	Kills       *int
	Deaths      *int
	Assists     *int
	HeroDamage  *int
	TowerDamage *int
	ObsPlaced   *int
	SenPlaced   *int
	LastHits    *int
	Denies      *int
	HeroHealing *int
	NetWorth    *int

	// Core item IDs in original slot order, junk consumables filtered,
	// padded with nil to six entries.
	Items [6]*int
}
