// Package store owns the relational datastore: raw match records, the three
// incrementally-maintained aggregate tables, the opponent-stats cache table
// and the auth-token table.
//
// The store is portable across embedded SQLite (modernc.org/sqlite, CGo-free)
// and networked PostgreSQL (lib/pq). Portability rules: queries are written
// once with ? placeholders and rebound to $N for Postgres, and the only
// conflict-resolution syntax used is
//
//	INSERT ... ON CONFLICT (pk) DO NOTHING
//	INSERT ... ON CONFLICT (pk) DO UPDATE SET col = table.col + excluded.col
//
// both of which are identical in SQLite 3.24+ and PostgreSQL 9.5+.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ilya13qwertyuiop-droid/dota-mini-app/internal/config"
)

// ErrModeBlocked is returned when SaveMatch refuses a write whose
// (game_mode, lobby_type) pair is missing or outside the allow-list.
// The pipeline filters these earlier; the store check is the last line of
// defence against callers that bypass it.
var ErrModeBlocked = errors.New("store: match blocked by game-mode gate")

// Options configures a Store.
type Options struct {
	// AllowedModes is the (game_mode, lobby_type) allow-list enforced by the
	// SaveMatch hard gate.
	AllowedModes config.ModeSet

	// MinMatchDuration is the aggregate-eligibility threshold in seconds.
	// Shorter matches are stored for audit but never touch the aggregates.
	MinMatchDuration int

	Logger zerolog.Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// Store is the single writer-facing handle over the datastore.
type Store struct {
	db      *sql.DB
	driver  string
	allowed config.ModeSet
	minDur  int
	logger  zerolog.Logger
	now     func() time.Time
}

// Open connects to the datastore, verifies connectivity and ensures the
// schema exists. driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// The worker is the single writer; one connection sidesteps
		// SQLITE_BUSY between the pool's connections entirely.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	now := opts.now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		db:      db,
		driver:  driver,
		allowed: opts.AllowedModes,
		minDur:  opts.MinMatchDuration,
		logger:  opts.Logger.With().Str("component", "store").Logger(),
		now:     now,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// q rewrites ? placeholders to $N for Postgres. SQLite queries pass through
// untouched. Placeholders inside string literals never occur in this package.
func (s *Store) q(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate creates all tables and indexes idempotently and applies
// engine-specific pragmas.
func (s *Store) migrate(ctx context.Context) error {
	if s.driver == "sqlite" {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("store: %s: %w", pragma, err)
			}
		}
	}

	autoinc := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		autoinc = "BIGSERIAL PRIMARY KEY"
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_id       BIGINT PRIMARY KEY,
			start_time     BIGINT NOT NULL,
			duration       INTEGER,
			patch          VARCHAR(16),
			avg_rank_tier  INTEGER,
			rank_bucket    VARCHAR(16),
			game_mode      SMALLINT NOT NULL,
			lobby_type     SMALLINT NOT NULL,
			radiant_win    SMALLINT NOT NULL,
			radiant_heroes TEXT NOT NULL,
			dire_heroes    TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS match_players (
			id            %s,
			match_id      BIGINT NOT NULL,
			hero_id       INTEGER NOT NULL,
			player_slot   INTEGER NOT NULL,
			is_radiant    SMALLINT NOT NULL,
			lane          SMALLINT,
			lane_role     SMALLINT,
			gpm           INTEGER,
			xpm           INTEGER,
			kills         INTEGER,
			deaths        INTEGER,
			assists       INTEGER,
			hero_damage   INTEGER,
			tower_damage  INTEGER,
			obs_placed    INTEGER,
			sen_placed    INTEGER,
			last_hits     INTEGER,
			denies        INTEGER,
			hero_healing  INTEGER,
			net_worth     INTEGER,
			item0         INTEGER,
			item1         INTEGER,
			item2         INTEGER,
			item3         INTEGER,
			item4         INTEGER,
			item5         INTEGER,
			CONSTRAINT uq_match_player UNIQUE (match_id, player_slot)
		)`, autoinc),
		`CREATE INDEX IF NOT EXISTS ix_match_players_match_id ON match_players (match_id)`,
		`CREATE TABLE IF NOT EXISTS hero_stats (
			hero_id INTEGER PRIMARY KEY,
			games   INTEGER NOT NULL DEFAULT 0,
			wins    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS hero_matchups (
			hero_a INTEGER NOT NULL,
			hero_b INTEGER NOT NULL,
			games  INTEGER NOT NULL DEFAULT 0,
			wins   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (hero_a, hero_b)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_hero_matchups_hero_b ON hero_matchups (hero_b)`,
		`CREATE TABLE IF NOT EXISTS hero_synergy (
			hero_a INTEGER NOT NULL,
			hero_b INTEGER NOT NULL,
			games  INTEGER NOT NULL DEFAULT 0,
			wins   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (hero_a, hero_b)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_hero_synergy_hero_b ON hero_synergy (hero_b)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hero_matchups_cache (
			id               %s,
			hero_id          INTEGER NOT NULL,
			opponent_hero_id INTEGER NOT NULL,
			games            INTEGER NOT NULL,
			wins             INTEGER NOT NULL,
			winrate          DOUBLE PRECISION NOT NULL,
			updated_at       VARCHAR(32) NOT NULL,
			CONSTRAINT uq_hero_matchups_cache_pair UNIQUE (hero_id, opponent_hero_id)
		)`, autoinc),
		`CREATE INDEX IF NOT EXISTS ix_hero_matchups_cache_hero_id ON hero_matchups_cache (hero_id)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token      VARCHAR(128) PRIMARY KEY,
			user_id    BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_tokens_user_id ON tokens (user_id)`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: schema: %w", err)
		}
	}

	s.logger.Info().
		Str("driver", s.driver).
		Msg("Tables ready (matches, match_players, hero_stats, hero_matchups, hero_synergy, hero_matchups_cache, tokens)")
	return nil
}
