// Package opendota is a typed client for the OpenDota REST API.
//
// Every call is stateless apart from the optional api_key query parameter.
// Transport failures surface as wrapped errors; non-2xx responses surface as
// *HTTPError. The client never retries — the ingestion loops re-discover
// unprocessed matches on the next cycle anyway.
package opendota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public OpenDota API root.
const DefaultBaseURL = "https://api.opendota.com/api"

// Per-call deadlines. Heavy calls (full match details, explorer SQL) get the
// long timeout; listing and matchup aggregates are light.
const (
	heavyTimeout = 30 * time.Second
	lightTimeout = 15 * time.Second
)

// HTTPError reports a non-2xx provider response.
type HTTPError struct {
	Status   int
	Endpoint string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("opendota: %s returned HTTP %d", e.Endpoint, e.Status)
}

// Client issues typed requests against the OpenDota API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a client. baseURL may be empty to use DefaultBaseURL; apiKey
// may be empty for anonymous (free-tier) access.
func New(baseURL, apiKey string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
		logger:  logger.With().Str("component", "opendota").Logger(),
	}
}

// PublicMatches lists up to 100 recent high-quality public matches.
// When lessThanID > 0 it pages backwards from that match ID.
func (c *Client) PublicMatches(ctx context.Context, lessThanID int64) ([]PublicMatch, error) {
	params := url.Values{
		"significant":    {"1"},
		"mmr_descending": {"1"},
	}
	if lessThanID > 0 {
		params.Set("less_than_match_id", strconv.FormatInt(lessThanID, 10))
	}

	var out []PublicMatch
	if err := c.get(ctx, "/publicMatches", params, lightTimeout, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExplorerMatchIDs returns up to limit recent match IDs for one
// (game_mode, lobby_type) pair via the SQL explorer endpoint, newest first.
func (c *Client) ExplorerMatchIDs(ctx context.Context, gameMode, lobbyType, limit int) ([]int64, error) {
	sql := fmt.Sprintf(
		"SELECT match_id FROM public_matches WHERE game_mode=%d AND lobby_type=%d ORDER BY start_time DESC LIMIT %d",
		gameMode, lobbyType, limit,
	)
	params := url.Values{"sql": {sql}}

	var out struct {
		Rows []struct {
			MatchID int64 `json:"match_id"`
		} `json:"rows"`
	}
	if err := c.get(ctx, "/explorer", params, heavyTimeout, &out); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(out.Rows))
	for _, r := range out.Rows {
		if r.MatchID > 0 {
			ids = append(ids, r.MatchID)
		}
	}
	return ids, nil
}

// MatchDetails fetches the full record for one match.
func (c *Client) MatchDetails(ctx context.Context, matchID int64) (*MatchDetails, error) {
	var out MatchDetails
	path := fmt.Sprintf("/matches/%d", matchID)
	if err := c.get(ctx, path, nil, heavyTimeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HeroMatchups fetches aggregated opponent stats for one hero.
func (c *Client) HeroMatchups(ctx context.Context, heroID int) ([]HeroMatchupEntry, error) {
	var out []HeroMatchupEntry
	path := fmt.Sprintf("/heroes/%d/matchups", heroID)
	if err := c.get(ctx, path, nil, lightTimeout, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	reqURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("opendota: build request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", path).Msg("Provider network error")
		return fmt.Errorf("opendota: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("endpoint", path).
			Str("body", string(excerpt)).
			Msg("Provider returned non-2xx")
		return &HTTPError{Status: resp.StatusCode, Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("opendota: decode %s response: %w", path, err)
	}
	return nil
}
