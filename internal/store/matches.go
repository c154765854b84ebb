package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/match"
)

// MatchExists reports whether a match is already stored. Primary-key probe,
// cheap enough to call once per discovered ID.
func (s *Store) MatchExists(ctx context.Context, matchID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT 1 FROM matches WHERE match_id = ?`), matchID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: match_exists %d: %w", matchID, err)
	}
	return true, nil
}

// MatchCount returns the number of stored matches.
func (s *Store) MatchCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: match count: %w", err)
	}
	return n, nil
}

// SaveMatch atomically writes one match plus its per-player rows and applies
// all aggregate deltas. Either everything commits or nothing does.
//
// Idempotent on match_id: if the row already exists the transaction commits
// without touching aggregates, so re-ingestion is a no-op. Matches shorter
// than the minimum duration are stored for audit but excluded from
// match_players and every aggregate table.
func (s *Store) SaveMatch(ctx context.Context, rec *match.Record, players []match.Player) error {
	// Hard gate: never write a match with a missing or disallowed
	// (game_mode, lobby_type) pair, even if a caller skipped its own filter.
	if !s.allowed.Contains(rec.GameMode, rec.LobbyType) {
		s.logger.Error().
			Int64("match_id", rec.MatchID).
			Interface("game_mode", rec.GameMode).
			Interface("lobby_type", rec.LobbyType).
			Str("allowed", s.allowed.String()).
			Msg("BLOCKED write: game mode outside allow-list")
		return ErrModeBlocked
	}

	radiantJSON, err := json.Marshal(rec.RadiantHeroes)
	if err != nil {
		return fmt.Errorf("store: encode radiant heroes: %w", err)
	}
	direJSON, err := json.Marshal(rec.DireHeroes)
	if err != nil {
		return fmt.Errorf("store: encode dire heroes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save_match: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO matches
			(match_id, start_time, duration, patch, avg_rank_tier, rank_bucket,
			 game_mode, lobby_type, radiant_win, radiant_heroes, dire_heroes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO NOTHING`),
		rec.MatchID, rec.StartTime, rec.Duration, rec.Patch, rec.AvgRankTier,
		rec.RankBucket, *rec.GameMode, *rec.LobbyType, boolToInt(rec.RadiantWin),
		string(radiantJSON), string(direJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert match %d: %w", rec.MatchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected for match %d: %w", rec.MatchID, err)
	}
	if affected == 0 {
		// Already stored — skip aggregate updates to keep counts correct.
		return tx.Commit()
	}

	// Duration gate: the row above is kept, everything derived is skipped.
	if rec.Duration != nil && *rec.Duration < s.minDur {
		s.logger.Debug().
			Int64("match_id", rec.MatchID).
			Int("duration", *rec.Duration).
			Int("min_duration", s.minDur).
			Msg("Short match stored without aggregate updates")
		return tx.Commit()
	}

	for i := range players {
		if err := insertPlayer(ctx, tx, s.q(insertPlayerSQL), rec.MatchID, &players[i]); err != nil {
			return err
		}
	}

	if err := applyMatchDeltas(ctx, tx, s, rec.RadiantWin, rec.RadiantHeroes, rec.DireHeroes); err != nil {
		return fmt.Errorf("store: aggregates for match %d: %w", rec.MatchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit match %d: %w", rec.MatchID, err)
	}
	return nil
}

const insertPlayerSQL = `
	INSERT INTO match_players
		(match_id, hero_id, player_slot, is_radiant,
		 lane, lane_role, gpm, xpm, kills, deaths, assists,
		 hero_damage, tower_damage, obs_placed, sen_placed,
		 last_hits, denies, hero_healing, net_worth,
		 item0, item1, item2, item3, item4, item5)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (match_id, player_slot) DO NOTHING`

func insertPlayer(ctx context.Context, tx *sql.Tx, query string, matchID int64, p *match.Player) error {
	_, err := tx.ExecContext(ctx, query,
		matchID, p.HeroID, p.PlayerSlot, boolToInt(p.IsRadiant),
		p.Lane, p.LaneRole, p.GPM, p.XPM, p.Kills, p.Deaths, p.Assists,
		p.HeroDamage, p.TowerDamage, p.ObsPlaced, p.SenPlaced,
		p.LastHits, p.Denies, p.HeroHealing, p.NetWorth,
		p.Items[0], p.Items[1], p.Items[2], p.Items[3], p.Items[4], p.Items[5],
	)
	if err != nil {
		return fmt.Errorf("store: insert player slot %d for match %d: %w", p.PlayerSlot, matchID, err)
	}
	return nil
}

// applyMatchDeltas applies the per-match increments to hero_stats,
// hero_matchups and hero_synergy inside the caller's transaction.
//
// Pair tables use canonical ordering hero_a < hero_b. In hero_matchups,
// wins counts wins by hero_a; (r < d) == radiantWin is true exactly when the
// smaller-ID hero was on the winning team.
func applyMatchDeltas(ctx context.Context, tx *sql.Tx, s *Store, radiantWin bool, radiant, dire []int) error {
	statSQL := s.q(`
		INSERT INTO hero_stats (hero_id, games, wins) VALUES (?, 1, ?)
		ON CONFLICT (hero_id) DO UPDATE SET
			games = hero_stats.games + 1,
			wins  = hero_stats.wins  + excluded.wins`)
	for _, h := range radiant {
		if _, err := tx.ExecContext(ctx, statSQL, h, boolToInt(radiantWin)); err != nil {
			return err
		}
	}
	for _, h := range dire {
		if _, err := tx.ExecContext(ctx, statSQL, h, boolToInt(!radiantWin)); err != nil {
			return err
		}
	}

	matchupSQL := s.q(`
		INSERT INTO hero_matchups (hero_a, hero_b, games, wins) VALUES (?, ?, 1, ?)
		ON CONFLICT (hero_a, hero_b) DO UPDATE SET
			games = hero_matchups.games + 1,
			wins  = hero_matchups.wins  + excluded.wins`)
	for _, r := range radiant {
		for _, d := range dire {
			if r == d {
				continue
			}
			a, b := minMax(r, d)
			aWins := boolToInt((r < d) == radiantWin)
			if _, err := tx.ExecContext(ctx, matchupSQL, a, b, aWins); err != nil {
				return err
			}
		}
	}

	synergySQL := s.q(`
		INSERT INTO hero_synergy (hero_a, hero_b, games, wins) VALUES (?, ?, 1, ?)
		ON CONFLICT (hero_a, hero_b) DO UPDATE SET
			games = hero_synergy.games + 1,
			wins  = hero_synergy.wins  + excluded.wins`)
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
				if _, err := tx.ExecContext(ctx, synergySQL, a, b, boolToInt(team.won)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func minMax(x, y int) (int, int) {
	if x < y {
		return x, y
	}
	return y, x
}
