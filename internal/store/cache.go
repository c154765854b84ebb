package store

import (
	"context"
	"fmt"
	"time"
)

// OpponentRow is one cached per-opponent aggregate fetched from the external
// aggregator, stored in hero_matchups_cache.
type OpponentRow struct {
	OpponentHeroID int
	Games          int
	Wins           int
	Winrate        float64
	UpdatedAt      string // RFC 3339
}

// OpponentRows reads all cached rows for a hero plus the most recent
// updated_at across them (zero time when no rows or unparseable timestamps).
func (s *Store) OpponentRows(ctx context.Context, heroID int) ([]OpponentRow, time.Time, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT opponent_hero_id, games, wins, winrate, updated_at
		FROM hero_matchups_cache WHERE hero_id = ?`),
		heroID,
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: opponent cache read for hero %d: %w", heroID, err)
	}
	defer rows.Close()

	var out []OpponentRow
	var latest time.Time
	for rows.Next() {
		var r OpponentRow
		if err := rows.Scan(&r.OpponentHeroID, &r.Games, &r.Wins, &r.Winrate, &r.UpdatedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("store: scan opponent cache row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil && ts.After(latest) {
			latest = ts
		}
		out = append(out, r)
	}
	return out, latest, rows.Err()
}

// ReplaceOpponentRows atomically replaces all cached rows for a hero
// (delete-then-insert in one transaction), so concurrent readers see either
// the full old set or the full new set.
func (s *Store) ReplaceOpponentRows(ctx context.Context, heroID int, rows []OpponentRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin cache replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM hero_matchups_cache WHERE hero_id = ?`), heroID); err != nil {
		return fmt.Errorf("store: clear opponent cache for hero %d: %w", heroID, err)
	}

	insertSQL := s.q(`
		INSERT INTO hero_matchups_cache
			(hero_id, opponent_hero_id, games, wins, winrate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insertSQL,
			heroID, r.OpponentHeroID, r.Games, r.Wins, r.Winrate, r.UpdatedAt); err != nil {
			return fmt.Errorf("store: insert opponent cache row for hero %d: %w", heroID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit cache replace for hero %d: %w", heroID, err)
	}
	return nil
}
