package opendota

// PublicMatch is one entry from GET /publicMatches. Only the fields the
// worker consumes are decoded; in particular the radiant_team/dire_team
// lists are ignored because the endpoint returns them zeroed.
type PublicMatch struct {
	MatchID     int64 `json:"match_id"`
	StartTime   int64 `json:"start_time"`
	RadiantWin  bool  `json:"radiant_win"`
	AvgRankTier *int  `json:"avg_rank_tier"`
}

// MatchDetails is the full record from GET /matches/{id} — the only source
// of truth for team composition and per-player stats.
type MatchDetails struct {
	MatchID     int64           `json:"match_id"`
	StartTime   int64           `json:"start_time"`
	Duration    *int            `json:"duration"`
	Patch       *int            `json:"patch"`
	AvgRankTier *int            `json:"avg_rank_tier"`
	GameMode    *int            `json:"game_mode"`
	LobbyType   *int            `json:"lobby_type"`
	RadiantWin  bool            `json:"radiant_win"`
	Players     []PlayerDetails `json:"players"`
}

// PlayerDetails is one player record within MatchDetails. Everything beyond
// hero_id and player_slot is optional upstream.
type PlayerDetails struct {
	HeroID     int  `json:"hero_id"`
	PlayerSlot *int `json:"player_slot"`

	Lane        *int `json:"lane"`
	LaneRole    *int `json:"lane_role"`
	GoldPerMin  *int `json:"gold_per_min"`
	XPPerMin    *int `json:"xp_per_min"`
	Kills       *int `json:"kills"`
	Deaths      *int `json:"deaths"`
	Assists     *int `json:"assists"`
	HeroDamage  *int `json:"hero_damage"`
	TowerDamage *int `json:"tower_damage"`
	ObsPlaced   *int `json:"obs_placed"`
	SenPlaced   *int `json:"sen_placed"`
	LastHits    *int `json:"last_hits"`
	Denies      *int `json:"denies"`
	HeroHealing *int `json:"hero_healing"`
	NetWorth    *int `json:"net_worth"`

	Item0 int `json:"item_0"`
	Item1 int `json:"item_1"`
	Item2 int `json:"item_2"`
	Item3 int `json:"item_3"`
	Item4 int `json:"item_4"`
	Item5 int `json:"item_5"`
}

// Items returns the six item slots in order.
func (p *PlayerDetails) Items() [6]int {
	return [6]int{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5}
}

// HeroMatchupEntry is one row from GET /heroes/{id}/matchups.
type HeroMatchupEntry struct {
	HeroID      int `json:"hero_id"`
	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
}
