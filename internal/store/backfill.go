package store

import (
	"context"
	"fmt"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/match"
)

// MatchIDsNeedingPlayers returns up to limit match IDs that have no
// match_players rows yet — matches saved before detail fetching was enabled.
// Short matches are excluded; they never carry player rows. Ordered by
// match_id ascending so backfill progress is monotonic.
func (s *Store) MatchIDsNeedingPlayers(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT m.match_id FROM matches m
		WHERE NOT EXISTS (
			SELECT 1 FROM match_players mp WHERE mp.match_id = m.match_id
		)
		AND (m.duration IS NULL OR m.duration >= ?)
		ORDER BY m.match_id
		LIMIT ?`),
		s.minDur, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: backfill candidates: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CountMatchesNeedingPlayers counts matches without match_players rows,
// short matches excluded.
func (s *Store) CountMatchesNeedingPlayers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM matches m
		WHERE NOT EXISTS (
			SELECT 1 FROM match_players mp WHERE mp.match_id = m.match_id
		)
		AND (m.duration IS NULL OR m.duration >= ?)`),
		s.minDur).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count backfill candidates: %w", err)
	}
	return n, nil
}

// ReplaceMatchPlayers replaces all match_players rows for one match in a
// single transaction (delete-then-insert), so a restarted backfill run is
// idempotent even over partially-written matches.
func (s *Store) ReplaceMatchPlayers(ctx context.Context, matchID int64, players []match.Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin player replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM match_players WHERE match_id = ?`), matchID); err != nil {
		return fmt.Errorf("store: clear players for match %d: %w", matchID, err)
	}
	for i := range players {
		if err := insertPlayer(ctx, tx, s.q(insertPlayerSQL), matchID, &players[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit player replace for match %d: %w", matchID, err)
	}
	return nil
}
