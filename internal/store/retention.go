package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// OldMatchIDs returns all match IDs whose start_time is older than
// olderThanDays days, oldest first.
func (s *Store) OldMatchIDs(ctx context.Context, olderThanDays int) ([]int64, error) {
	cutoff := s.now().Unix() - int64(olderThanDays)*86400
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT match_id FROM matches WHERE start_time < ? ORDER BY start_time ASC`),
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("store: old match ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// OldestMatchIDs returns the count oldest match IDs by start_time, used to
// enforce the maximum-size cap.
func (s *Store) OldestMatchIDs(ctx context.Context, count int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT match_id FROM matches ORDER BY start_time ASC LIMIT ?`),
		count,
	)
	if err != nil {
		return nil, fmt.Errorf("store: oldest match ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EvictAndRebuild deletes the given matches (players first, then match rows)
// and rebuilds all three aggregate tables from the remaining matches, all in
// one transaction. Readers see either the old state or the new state.
//
// Truncate-and-rebuild is deliberate: subtracting the deleted matches'
// deltas would require re-reading each one's hero lists and applying inverse
// upserts, while the rebuild is O(remaining × 25) map work plus one bulk
// write — well within the 300k match cap.
func (s *Store) EvictAndRebuild(ctx context.Context, matchIDs []int64) error {
	if len(matchIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin evict: %w", err)
	}
	defer tx.Rollback()

	delPlayers := s.q(`DELETE FROM match_players WHERE match_id = ?`)
	delMatch := s.q(`DELETE FROM matches WHERE match_id = ?`)
	for _, id := range matchIDs {
		if _, err := tx.ExecContext(ctx, delPlayers, id); err != nil {
			return fmt.Errorf("store: delete players for match %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, delMatch, id); err != nil {
			return fmt.Errorf("store: delete match %d: %w", id, err)
		}
	}

	remaining, err := s.rebuildAggregates(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit evict: %w", err)
	}

	s.logger.Info().
		Int("deleted", len(matchIDs)).
		Int("remaining", remaining).
		Msg("Eviction done, aggregates rebuilt")
	return nil
}

// RecalculateAll wipes and rebuilds the three aggregate tables from the full
// matches table without deleting anything. Admin entry point: run after a
// bulk import or after changing the minimum-duration threshold.
func (s *Store) RecalculateAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin recalculate: %w", err)
	}
	defer tx.Rollback()

	used, err := s.rebuildAggregates(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit recalculate: %w", err)
	}

	s.logger.Info().
		Int("matches_used", used).
		Int("min_duration", s.minDur).
		Msg("Full aggregate recalculation done")
	return nil
}

// rebuildAggregates truncates the aggregate tables and repopulates them from
// every stored match passing the duration filter, using the same per-match
// deltas as SaveMatch. Runs inside the caller's transaction. Returns the
// number of matches used.
func (s *Store) rebuildAggregates(ctx context.Context, tx *sql.Tx) (int, error) {
	for _, table := range []string{"hero_matchups", "hero_synergy", "hero_stats"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("store: truncate %s: %w", table, err)
		}
	}

	// The duration filter mirrors ingestion so the rebuilt aggregates match
	// what replaying SaveMatch on the retained set would produce.
	rows, err := tx.QueryContext(ctx, s.q(`
		SELECT radiant_win, radiant_heroes, dire_heroes FROM matches
		WHERE duration IS NULL OR duration >= ?`),
		s.minDur,
	)
	if err != nil {
		return 0, fmt.Errorf("store: scan remaining matches: %w", err)
	}

	agg := newAggregates()
	used := 0
	for rows.Next() {
		var radiantWin int
		var radiantJSON, direJSON string
		if err := rows.Scan(&radiantWin, &radiantJSON, &direJSON); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: scan match row: %w", err)
		}
		var radiant, dire []int
		if err := json.Unmarshal([]byte(radiantJSON), &radiant); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: decode radiant heroes: %w", err)
		}
		if err := json.Unmarshal([]byte(direJSON), &dire); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: decode dire heroes: %w", err)
		}
		agg.addMatch(radiantWin == 1, radiant, dire)
		used++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("store: iterate matches: %w", err)
	}
	rows.Close()

	if err := agg.insertAll(ctx, tx, s); err != nil {
		return 0, err
	}
	return used, nil
}

// pairKey identifies a canonical hero pair, a < b.
type pairKey struct {
	a, b int
}

type tally struct {
	games int
	wins  int
}

// aggregates accumulates the three aggregate tables in memory during a
// rebuild. addMatch must stay equivalent to applyMatchDeltas.
type aggregates struct {
	stats    map[int]*tally
	matchups map[pairKey]*tally
	synergy  map[pairKey]*tally
}

func newAggregates() *aggregates {
	return &aggregates{
		stats:    make(map[int]*tally),
		matchups: make(map[pairKey]*tally),
		synergy:  make(map[pairKey]*tally),
	}
}

func (g *aggregates) addMatch(radiantWin bool, radiant, dire []int) {
	for _, h := range radiant {
		g.bumpStat(h, radiantWin)
	}
	for _, h := range dire {
		g.bumpStat(h, !radiantWin)
	}

	for _, r := range radiant {
		for _, d := range dire {
			if r == d {
				continue
			}
			a, b := minMax(r, d)
			aWon := (r < d) == radiantWin
			g.bump(g.matchups, pairKey{a, b}, aWon)
		}
	}

	for _, team := range []struct {
		heroes []int
		won    bool
	}{
		{radiant, radiantWin},
		{dire, !radiantWin},
	} {
		for i := 0; i < len(team.heroes); i++ {
			for j := i + 1; j < len(team.heroes); j++ {
				a, b := minMax(team.heroes[i], team.heroes[j])
				g.bump(g.synergy, pairKey{a, b}, team.won)
			}
		}
	}
}

func (g *aggregates) bumpStat(heroID int, won bool) {
	t := g.stats[heroID]
	if t == nil {
		t = &tally{}
		g.stats[heroID] = t
	}
	t.games++
	if won {
		t.wins++
	}
}

func (g *aggregates) bump(m map[pairKey]*tally, k pairKey, won bool) {
	t := m[k]
	if t == nil {
		t = &tally{}
		m[k] = t
	}
	t.games++
	if won {
		t.wins++
	}
}

func (g *aggregates) insertAll(ctx context.Context, tx *sql.Tx, s *Store) error {
	statSQL := s.q(`INSERT INTO hero_stats (hero_id, games, wins) VALUES (?, ?, ?)`)
	for h, t := range g.stats {
		if _, err := tx.ExecContext(ctx, statSQL, h, t.games, t.wins); err != nil {
			return fmt.Errorf("store: bulk insert hero_stats: %w", err)
		}
	}
	matchupSQL := s.q(`INSERT INTO hero_matchups (hero_a, hero_b, games, wins) VALUES (?, ?, ?, ?)`)
	for k, t := range g.matchups {
		if _, err := tx.ExecContext(ctx, matchupSQL, k.a, k.b, t.games, t.wins); err != nil {
			return fmt.Errorf("store: bulk insert hero_matchups: %w", err)
		}
	}
	synergySQL := s.q(`INSERT INTO hero_synergy (hero_a, hero_b, games, wins) VALUES (?, ?, ?, ?)`)
	for k, t := range g.synergy {
		if _, err := tx.ExecContext(ctx, synergySQL, k.a, k.b, t.games, t.wins); err != nil {
			return fmt.Errorf("store: bulk insert hero_synergy: %w", err)
		}
	}
	return nil
}
