package geocoding

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/LiveTrace/internal/cache"
	"go.uber.org/zap"
)

const DefaultCacheTTL = 24 * time.Hour

// Cached is a read-through cache in front of a Client. Coordinates are
// rounded to 4 decimals (~11 m) to form the key. Cache failures degrade to
// a direct lookup.
type Cached struct {
	next   Client
	cache  cache.BytesCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Client, c cache.BytesCache, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f:%.4f", lat, lon)
}

func (c *Cached) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("geocode cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return string(b), nil
	}

	addr, err := c.next.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, []byte(addr), c.ttl); err != nil {
		c.logger.Warn("geocode cache set failed", zap.String("key", key), zap.Error(err))
	}
	return addr, nil
}
