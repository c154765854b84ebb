package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	token, err := s.CreateToken(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, ok, err := s.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
}

func TestTokenUnknown(t *testing.T) {
	s := openTestStore(t)

	userID, ok, err := s.ResolveToken(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, userID)
}

func TestTokenExpiryIsAbsolute(t *testing.T) {
	current := time.Now()
	s := openTestStoreAt(t, func() time.Time { return current })
	ctx := context.Background()

	token, err := s.CreateToken(ctx, 42)
	require.NoError(t, err)

	// Just before expiry the token still resolves.
	current = current.Add(tokenTTL - time.Second)
	_, ok, err := s.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	// Reads do not extend the lifetime; past the original deadline the token
	// is gone and its row deleted.
	current = current.Add(2 * time.Second)
	_, ok, err = s.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, tableCount(t, s, "tokens"))
}

func TestTokensAreUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateToken(ctx, 1)
	require.NoError(t, err)
	b, err := s.CreateToken(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
