// Package config loads and validates the stats-worker configuration from
// environment variables (with optional .env file support).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Toggle is a boolean option that accepts "1", "true" and "yes"
// (case-insensitive) as truthy values, matching the worker's historical
// environment-variable conventions.
type Toggle bool

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (t *Toggle) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes":
		*t = true
	case "", "0", "false", "no":
		*t = false
	default:
		return fmt.Errorf("invalid boolean value %q (want 1/true/yes or 0/false/no)", text)
	}
	return nil
}

// ModePair identifies a (game_mode, lobby_type) combination.
// OpenDota numeric codes: game_mode 22 = Ranked All Pick, lobby_type 7 = ranked.
type ModePair struct {
	GameMode  int
	LobbyType int
}

func (p ModePair) String() string {
	return fmt.Sprintf("%d:%d", p.GameMode, p.LobbyType)
}

// ModeSet is the ingestion allow-list: only matches whose
// (game_mode, lobby_type) pair appears here are ever written.
type ModeSet map[ModePair]struct{}

// UnmarshalText parses a comma-separated list of "gameMode:lobbyType" pairs,
// e.g. "22:7" or "22:7,1:0".
func (m *ModeSet) UnmarshalText(text []byte) error {
	set := make(ModeSet)
	for _, part := range strings.Split(string(text), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return fmt.Errorf("invalid mode pair %q (want gameMode:lobbyType)", part)
		}
		gm, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return fmt.Errorf("invalid game_mode in %q: %w", part, err)
		}
		lt, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return fmt.Errorf("invalid lobby_type in %q: %w", part, err)
		}
		set[ModePair{GameMode: gm, LobbyType: lt}] = struct{}{}
	}
	*m = set
	return nil
}

// Contains reports whether the pair is admitted. Nil pointers (fields the
// provider omitted) are never admitted.
func (m ModeSet) Contains(gameMode, lobbyType *int) bool {
	if gameMode == nil || lobbyType == nil {
		return false
	}
	_, ok := m[ModePair{GameMode: *gameMode, LobbyType: *lobbyType}]
	return ok
}

// Pairs returns the allow-list in deterministic-enough order for iteration.
func (m ModeSet) Pairs() []ModePair {
	out := make([]ModePair, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

func (m ModeSet) String() string {
	parts := make([]string, 0, len(m))
	for p := range m {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}

// Config holds all stats-worker configuration.
type Config struct {
	// Upstream provider
	APIKey string `env:"OPENDOTA_API_KEY"`

	// Datastore
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"file:stats.db?cache=shared"`

	// Polling
	PollIntervalMinutes  int    `env:"POLL_INTERVAL_MINUTES" envDefault:"15"`
	MaxRequestsPerMinute int    `env:"MAX_REQUESTS_PER_MINUTE" envDefault:"30"`
	MaxMatchesPerCycle   int    `env:"MAX_MATCHES_PER_CYCLE" envDefault:"50"`
	FetchMatchDetails    Toggle `env:"FETCH_MATCH_DETAILS" envDefault:"0"`

	// Explorer-based secondary discovery loop
	UseExplorer             Toggle `env:"USE_EXPLORER" envDefault:"0"`
	ExplorerIntervalSeconds int    `env:"EXPLORER_INTERVAL_SECONDS" envDefault:"300"`

	// Bootstrap mode: aggressive overrides for rapid initial DB population.
	// Overrides PollIntervalMinutes=5, MaxMatchesPerCycle=100,
	// MaxRequestsPerMinute=200.
	BootstrapMode Toggle `env:"STATS_BOOTSTRAP_MODE" envDefault:"0"`

	// Retention
	MaxMatches           int `env:"MAX_MATCHES" envDefault:"300000"`
	DaysToKeep           int `env:"DAYS_TO_KEEP" envDefault:"90"`
	CleanupIntervalHours int `env:"CLEANUP_INTERVAL_HOURS" envDefault:"24"`

	// Match quality
	AllowedModes     ModeSet `env:"ALLOWED_GAME_MODE_PAIRS" envDefault:"22:7"`
	MinMatchDuration int     `env:"MIN_MATCH_DURATION_SECONDS" envDefault:"900"`

	// Item filtering: extra item IDs excluded from "core" build extraction,
	// merged with the built-in junk set.
	ExtraJunkItems []int `env:"EXTRA_JUNK_ITEM_IDS" envSeparator:","`

	// Opponent-aggregate cache
	CacheTTLHours int `env:"HERO_MATCHUPS_TTL_HOURS" envDefault:"24"`

	// One-shot backfill of match_players for legacy matches. Normally off so
	// the worker never spends API budget on already-saved rows.
	EnableBackfill    Toggle        `env:"ENABLE_BACKFILL_OLD_MATCHES" envDefault:"0"`
	BackfillMaxPerRun int           `env:"BACKFILL_MAX_MATCHES_PER_RUN" envDefault:"150"`
	BackfillSleep     time.Duration `env:"BACKFILL_SLEEP_BETWEEN_CALLS" envDefault:"700ms"`

	// Diagnostics
	DiagAddr        string        `env:"DIAG_ADDR" envDefault:":9100"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BootstrapMode {
		// Burst profile: ~101 API calls at 200/min is a ~30 s burst per
		// 5-minute cycle, well under the paid-tier 3000 req/min ceiling.
		cfg.PollIntervalMinutes = 5
		cfg.MaxMatchesPerCycle = 100
		cfg.MaxRequestsPerMinute = 200
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors. Failures here are fatal at
// start-up; nothing else in the worker re-validates these values.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres (got: %s)", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PollIntervalMinutes < 1 {
		return fmt.Errorf("POLL_INTERVAL_MINUTES must be > 0, got %d", c.PollIntervalMinutes)
	}
	if c.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("MAX_REQUESTS_PER_MINUTE must be > 0, got %d", c.MaxRequestsPerMinute)
	}
	if c.MaxMatchesPerCycle < 1 {
		return fmt.Errorf("MAX_MATCHES_PER_CYCLE must be > 0, got %d", c.MaxMatchesPerCycle)
	}
	if c.MaxMatches < 1 {
		return fmt.Errorf("MAX_MATCHES must be > 0, got %d", c.MaxMatches)
	}
	if c.DaysToKeep < 1 {
		return fmt.Errorf("DAYS_TO_KEEP must be > 0, got %d", c.DaysToKeep)
	}
	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("CLEANUP_INTERVAL_HOURS must be > 0, got %d", c.CleanupIntervalHours)
	}
	if c.ExplorerIntervalSeconds < 1 {
		return fmt.Errorf("EXPLORER_INTERVAL_SECONDS must be > 0, got %d", c.ExplorerIntervalSeconds)
	}
	if c.MinMatchDuration < 0 {
		return fmt.Errorf("MIN_MATCH_DURATION_SECONDS must be >= 0, got %d", c.MinMatchDuration)
	}
	if c.CacheTTLHours < 1 {
		return fmt.Errorf("HERO_MATCHUPS_TTL_HOURS must be > 0, got %d", c.CacheTTLHours)
	}
	if len(c.AllowedModes) == 0 {
		return fmt.Errorf("ALLOWED_GAME_MODE_PAIRS must contain at least one pair")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// PollInterval returns the listing-loop cycle period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// ExplorerInterval returns the query-loop cycle period.
func (c *Config) ExplorerInterval() time.Duration {
	return time.Duration(c.ExplorerIntervalSeconds) * time.Second
}

// CleanupInterval returns the retention-worker cadence.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// CacheTTL returns the opponent-cache validity window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// LogConfig logs the effective configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Bool("bootstrap_mode", bool(c.BootstrapMode)).
		Str("database_driver", c.DatabaseDriver).
		Int("poll_interval_minutes", c.PollIntervalMinutes).
		Int("max_requests_per_minute", c.MaxRequestsPerMinute).
		Int("max_matches_per_cycle", c.MaxMatchesPerCycle).
		Bool("fetch_match_details", bool(c.FetchMatchDetails)).
		Bool("use_explorer", bool(c.UseExplorer)).
		Int("explorer_interval_seconds", c.ExplorerIntervalSeconds).
		Int("max_matches", c.MaxMatches).
		Int("days_to_keep", c.DaysToKeep).
		Int("cleanup_interval_hours", c.CleanupIntervalHours).
		Str("allowed_modes", c.AllowedModes.String()).
		Int("min_match_duration", c.MinMatchDuration).
		Int("cache_ttl_hours", c.CacheTTLHours).
		Bool("enable_backfill", bool(c.EnableBackfill)).
		Bool("api_key_set", c.APIKey != "").
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Stats worker configuration loaded")
}
