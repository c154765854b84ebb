// Package ranker derives counter/victim and ally rankings from aggregate
// store rows. All functions are pure: they never touch the datastore or the
// provider.
package ranker

import (
	"math"
	"sort"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/store"
)

// Entry is one ranked opponent or ally.
type Entry struct {
	HeroID int
	Games  int
	WrVs   float64
	// Advantage is the hero's win rate against (or with) this hero minus the
	// hero's base win rate: a signed, rank-neutral effect size.
	Advantage float64
}

// neutralBase substitutes for an unknown base win rate so the advantage
// metric stays meaningful for heroes with no recorded games.
const neutralBase = 0.5

// Counters splits cross-team matchup rows into counters (heroes that beat
// this hero, advantage < 0, worst first) and victims (advantage >= 0, best
// first), each truncated to limit. base is the hero's overall win rate; nil
// falls back to 0.5. Ties keep query order — callers must not depend on it.
func Counters(rows []store.MatchupRow, base *float64, limit int) (counters, victims []Entry) {
	enriched := enrich(rows, base)

	for _, e := range enriched {
		if e.Advantage < 0 {
			counters = append(counters, e)
		} else {
			victims = append(victims, e)
		}
	}
	sort.SliceStable(counters, func(i, j int) bool { return counters[i].Advantage < counters[j].Advantage })
	sort.SliceStable(victims, func(i, j int) bool { return victims[i].Advantage > victims[j].Advantage })
	return truncate(counters, limit), truncate(victims, limit)
}

// Allies splits same-team synergy rows into best allies (delta >= 0, best
// first) and worst allies (delta < 0, worst first).
func Allies(rows []store.MatchupRow, base *float64, limit int) (best, worst []Entry) {
	enriched := enrich(rows, base)

	for _, e := range enriched {
		if e.Advantage >= 0 {
			best = append(best, e)
		} else {
			worst = append(worst, e)
		}
	}
	sort.SliceStable(best, func(i, j int) bool { return best[i].Advantage > best[j].Advantage })
	sort.SliceStable(worst, func(i, j int) bool { return worst[i].Advantage < worst[j].Advantage })
	return truncate(best, limit), truncate(worst, limit)
}

func enrich(rows []store.MatchupRow, base *float64) []Entry {
	b := neutralBase
	if base != nil {
		b = *base
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			HeroID:    r.HeroID,
			Games:     r.Games,
			WrVs:      r.WrVs,
			Advantage: math.Round((r.WrVs-b)*10000) / 10000,
		})
	}
	return out
}

func truncate(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
