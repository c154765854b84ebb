package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// MatchupRow is one opponent (or ally) entry from the hero's perspective.
type MatchupRow struct {
	HeroID int // the opponent/ally, not the queried hero
	Games  int
	Wins   int // wins from the queried hero's perspective
	// WrVs is Wins / Games, rounded to 4 decimals.
	WrVs float64
}

// MatchupRows returns all cross-team matchup rows touching heroID with at
// least minGames games, rewritten to the hero's perspective: when the hero
// is hero_b of a canonical pair, wins flip to games - wins.
func (s *Store) MatchupRows(ctx context.Context, heroID, minGames int) ([]MatchupRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT hero_a, hero_b, games, wins FROM hero_matchups
		WHERE (hero_a = ? OR hero_b = ?) AND games >= ?`),
		heroID, heroID, minGames,
	)
	if err != nil {
		return nil, fmt.Errorf("store: matchup rows for hero %d: %w", heroID, err)
	}
	defer rows.Close()
	return scanPairRows(rows, heroID, true)
}

// SynergyRows returns all same-team pair rows touching heroID with at least
// minGames games. Wins are shared by both heroes of the pair, so no flip.
func (s *Store) SynergyRows(ctx context.Context, heroID, minGames int) ([]MatchupRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT hero_a, hero_b, games, wins FROM hero_synergy
		WHERE (hero_a = ? OR hero_b = ?) AND games >= ?`),
		heroID, heroID, minGames,
	)
	if err != nil {
		return nil, fmt.Errorf("store: synergy rows for hero %d: %w", heroID, err)
	}
	defer rows.Close()
	return scanPairRows(rows, heroID, false)
}

func scanPairRows(rows *sql.Rows, heroID int, flipWins bool) ([]MatchupRow, error) {
	var out []MatchupRow
	for rows.Next() {
		var a, b, games, wins int
		if err := rows.Scan(&a, &b, &games, &wins); err != nil {
			return nil, fmt.Errorf("store: scan pair row: %w", err)
		}
		other := b
		heroWins := wins
		if a != heroID {
			other = a
			if flipWins {
				heroWins = games - wins
			}
		}
		wr := 0.0
		if games > 0 {
			wr = round4(float64(heroWins) / float64(games))
		}
		out = append(out, MatchupRow{HeroID: other, Games: games, Wins: heroWins, WrVs: wr})
	}
	return out, rows.Err()
}

// BaseWinrate returns the hero's overall winrate from hero_stats, rounded to
// 4 decimals, or nil when the hero has no recorded games.
func (s *Store) BaseWinrate(ctx context.Context, heroID int) (*float64, error) {
	var games, wins int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT games, wins FROM hero_stats WHERE hero_id = ?`), heroID,
	).Scan(&games, &wins)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: base winrate for hero %d: %w", heroID, err)
	}
	if games == 0 {
		return nil, nil
	}
	wr := round4(float64(wins) / float64(games))
	return &wr, nil
}

// TotalGames returns the hero's total recorded games (0 when unknown).
func (s *Store) TotalGames(ctx context.Context, heroID int) (int, error) {
	var games int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT games FROM hero_stats WHERE hero_id = ?`), heroID,
	).Scan(&games)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: total games for hero %d: %w", heroID, err)
	}
	return games, nil
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
