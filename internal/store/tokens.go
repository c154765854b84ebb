package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenTTL is the fixed token lifetime. Expiry is absolute: reads never
// extend it.
const tokenTTL = 24 * time.Hour

// CreateToken mints a URL-safe bearer token for the user and stores it with
// a 24-hour expiry.
func (s *Store) CreateToken(ctx context.Context, userID int64) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("store: token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	expiresAt := s.now().Add(tokenTTL).Unix()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO tokens (token, user_id, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			user_id    = excluded.user_id,
			expires_at = excluded.expires_at`),
		token, userID, expiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("store: create token: %w", err)
	}
	return token, nil
}

// ResolveToken returns the user ID the token maps to. Unknown tokens yield
// (0, false, nil); expired tokens are deleted inline and also yield
// (0, false, nil).
func (s *Store) ResolveToken(ctx context.Context, token string) (int64, bool, error) {
	var userID, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT user_id, expires_at FROM tokens WHERE token = ?`), token,
	).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: resolve token: %w", err)
	}

	if expiresAt < s.now().Unix() {
		if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tokens WHERE token = ?`), token); err != nil {
			return 0, false, fmt.Errorf("store: delete expired token: %w", err)
		}
		return 0, false, nil
	}
	return userID, true, nil
}
