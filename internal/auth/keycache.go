package auth

import (
	"context"
	"crypto/rsa"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KeyFetcher retrieves the current set of signing keys, keyed by kid.
type KeyFetcher func(ctx context.Context) (map[string]*rsa.PublicKey, error)

// KeyCache holds verification keys behind a mutex with an explicit
// TTL. When a refresh fails and an expired set is still on hand, the
// stale keys are served rather than failing the request outright.
type KeyCache struct {
	mu        sync.Mutex
	fetch     KeyFetcher
	ttl       time.Duration
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	logger    *zap.Logger

	now func() time.Time
}

func NewKeyCache(fetch KeyFetcher, ttl time.Duration, logger *zap.Logger) *KeyCache {
	return &KeyCache{
		fetch:  fetch,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Keys returns the cached key set, refreshing it when the TTL has
// elapsed.
func (c *KeyCache) Keys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keys != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.keys, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		if c.keys != nil {
			c.logger.Warn("Key refresh failed, serving stale keys", zap.Error(err))
			return c.keys, nil
		}
		return nil, err
	}

	c.keys = keys
	c.fetchedAt = c.now()
	c.logger.Info("Refreshed signing keys", zap.Int("count", len(keys)))
	return c.keys, nil
}

// Invalidate drops the cached keys so the next Keys call refetches.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = nil
	c.fetchedAt = time.Time{}
}
