package match

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/opendota"
)

// Reject reasons reported by ParseDetails.
const (
	RejectPlayerCount   = "player_count"
	RejectMissingHero   = "missing_hero"
	RejectTeamSplit     = "team_split"
	RejectDuplicateHero = "duplicate_hero"
)

// RejectError marks a match payload as deterministically unusable.
type RejectError struct {
	MatchID int64
	Reason  string
	Detail  string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("match %d rejected (%s): %s", e.MatchID, e.Reason, e.Detail)
}

// Dire players occupy slots 128-255; everything below is Radiant.
const direSlotBase = 128

// junkItemIDs are cheap consumables and starting items that never count as
// part of a hero's core build (OpenDota numeric item IDs).
var junkItemIDs = map[int]struct{}{
	0:   {}, // empty slot
	42:  {}, // observer ward
	43:  {}, // sentry ward
	44:  {}, // clarity potion
	45:  {}, // tango
	46:  {}, // healing salve
	145: {}, // town portal scroll
	185: {}, // smoke of deceit
	244: {}, // wind lace
}

// BucketForTier maps OpenDota avg_rank_tier (major*10 + minor, e.g. 55 =
// Legend V) to a coarse named bucket. The boundaries are part of the
// analytics contract: rows already written with one bucketing must stay
// comparable with future rows.
//
//	nil / 0  → "unknown"
//	1  – 20  → "low"
//	21 – 35  → "mid"
//	36 – 50  → "high"
//	51 – 60  → "very_high"
//	61+      → "immortal"
func BucketForTier(tier *int) string {
	if tier == nil || *tier == 0 {
		return "unknown"
	}
	switch t := *tier; {
	case t <= 20:
		return "low"
	case t <= 35:
		return "mid"
	case t <= 50:
		return "high"
	case t <= 60:
		return "very_high"
	default:
		return "immortal"
	}
}

// Parser validates full match payloads and normalizes them into Records.
type Parser struct {
	junk   map[int]struct{}
	logger zerolog.Logger
}

// NewParser creates a parser. extraJunk item IDs are merged with the
// built-in junk set.
func NewParser(extraJunk []int, logger zerolog.Logger) *Parser {
	junk := make(map[int]struct{}, len(junkItemIDs)+len(extraJunk))
	for id := range junkItemIDs {
		junk[id] = struct{}{}
	}
	for _, id := range extraJunk {
		junk[id] = struct{}{}
	}
	return &Parser{
		junk:   junk,
		logger: logger.With().Str("component", "parser").Logger(),
	}
}

// ParseDetails validates a full /matches/{id} payload and returns the
// canonical record plus per-player rows, or a *RejectError.
//
// Checks, in order: exactly 10 players, no missing/zero hero IDs, the
// player_slot split yields exactly 5 Radiant + 5 Dire, and the two hero
// sets are disjoint.
func (p *Parser) ParseDetails(d *opendota.MatchDetails) (*Record, []Player, error) {
	if len(d.Players) != 10 {
		return nil, nil, p.reject(d.MatchID, RejectPlayerCount,
			fmt.Sprintf("expected 10 players, got %d", len(d.Players)))
	}

	missing := 0
	for _, pl := range d.Players {
		if pl.HeroID == 0 {
			missing++
		}
	}
	if missing > 0 {
		return nil, nil, p.reject(d.MatchID, RejectMissingHero,
			fmt.Sprintf("%d player(s) have hero_id=0", missing))
	}

	var radiant, dire []int
	for _, pl := range d.Players {
		if pl.PlayerSlot == nil {
			continue
		}
		if *pl.PlayerSlot < direSlotBase {
			radiant = append(radiant, pl.HeroID)
		} else {
			dire = append(dire, pl.HeroID)
		}
	}
	if len(radiant) != 5 || len(dire) != 5 {
		return nil, nil, p.reject(d.MatchID, RejectTeamSplit,
			fmt.Sprintf("team split radiant=%d dire=%d", len(radiant), len(dire)))
	}

	// Disjointness is implied for well-formed upstream data; still checked.
	seen := make(map[int]struct{}, 10)
	for _, h := range append(append([]int{}, radiant...), dire...) {
		if _, dup := seen[h]; dup {
			return nil, nil, p.reject(d.MatchID, RejectDuplicateHero,
				fmt.Sprintf("hero %d appears on both teams or twice", h))
		}
		seen[h] = struct{}{}
	}

	var patch *string
	if d.Patch != nil {
		s := strconv.Itoa(*d.Patch)
		patch = &s
	}

	rec := &Record{
		MatchID:       d.MatchID,
		StartTime:     d.StartTime,
		Duration:      d.Duration,
		Patch:         patch,
		AvgRankTier:   d.AvgRankTier,
		RankBucket:    BucketForTier(d.AvgRankTier),
		GameMode:      d.GameMode,
		LobbyType:     d.LobbyType,
		RadiantWin:    d.RadiantWin,
		RadiantHeroes: radiant,
		DireHeroes:    dire,
	}

	players := make([]Player, 0, 10)
	for i := range d.Players {
		players = append(players, p.extractPlayer(&d.Players[i]))
	}
	return rec, players, nil
}

// extractPlayer copies per-player stats and filters item slots down to core
// items: junk consumables and empty slots are dropped, the first six
// survivors keep their original order, and the result is padded with nil.
func (p *Parser) extractPlayer(pl *opendota.PlayerDetails) Player {
	slot := direSlotBase
	if pl.PlayerSlot != nil {
		slot = *pl.PlayerSlot
	}

	var items [6]*int
	n := 0
	for _, id := range pl.Items() {
		if _, isJunk := p.junk[id]; isJunk {
			continue
		}
		if n == len(items) {
			break
		}
		v := id
		items[n] = &v
		n++
	}

	return Player{
		HeroID:      pl.HeroID,
		PlayerSlot:  slot,
		IsRadiant:   slot < direSlotBase,
		Lane:        pl.Lane,
		LaneRole:    pl.LaneRole,
		GPM:         pl.GoldPerMin,
		XPM:         pl.XPPerMin,
		Kills:       pl.Kills,
		Deaths:      pl.Deaths,
		Assists:     pl.Assists,
		HeroDamage:  pl.HeroDamage,
		TowerDamage: pl.TowerDamage,
		ObsPlaced:   pl.ObsPlaced,
		SenPlaced:   pl.SenPlaced,
		LastHits:    pl.LastHits,
		Denies:      pl.Denies,
		HeroHealing: pl.HeroHealing,
		NetWorth:    pl.NetWorth,
		Items:       items,
	}
}

func (p *Parser) reject(matchID int64, reason, detail string) *RejectError {
	p.logger.Warn().
		Int64("match_id", matchID).
		Str("reason", reason).
		Str("detail", detail).
		Msg("Match payload rejected")
	return &RejectError{MatchID: matchID, Reason: reason, Detail: detail}
}
