package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKeySet(kid string) map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{
		kid: {N: big.NewInt(12345), E: 65537},
	}
}

func TestKeyCacheFetchesOnce(t *testing.T) {
	fetches := 0
	cache := NewKeyCache(func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		fetches++
		return testKeySet("k1"), nil
	}, time.Hour, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		keys, err := cache.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, "k1")
	}
	assert.Equal(t, 1, fetches)
}

func TestKeyCacheRefreshesAfterTTL(t *testing.T) {
	fetches := 0
	cache := NewKeyCache(func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		fetches++
		return testKeySet("k1"), nil
	}, time.Hour, zap.NewNop())

	now := time.Now()
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cache.Keys(ctx)
	require.NoError(t, err)

	// Within the TTL nothing is refetched.
	now = now.Add(59 * time.Minute)
	_, err = cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)

	now = now.Add(2 * time.Minute)
	_, err = cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestKeyCacheServesStaleOnFailure(t *testing.T) {
	healthy := true
	cache := NewKeyCache(func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		if !healthy {
			return nil, errors.New("upstream down")
		}
		return testKeySet("k1"), nil
	}, time.Hour, zap.NewNop())

	now := time.Now()
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cache.Keys(ctx)
	require.NoError(t, err)

	// Expired cache plus a failing fetch still serves the old keys.
	healthy = false
	now = now.Add(2 * time.Hour)
	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "k1")
}

func TestKeyCacheFailsWithNoKeys(t *testing.T) {
	cache := NewKeyCache(func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		return nil, errors.New("upstream down")
	}, time.Hour, zap.NewNop())

	_, err := cache.Keys(context.Background())
	assert.Error(t, err)
}

func TestKeyCacheInvalidate(t *testing.T) {
	fetches := 0
	cache := NewKeyCache(func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		fetches++
		return testKeySet("k1"), nil
	}, time.Hour, zap.NewNop())

	ctx := context.Background()
	_, err := cache.Keys(ctx)
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}
