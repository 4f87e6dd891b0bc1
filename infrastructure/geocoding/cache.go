package geocoding

import (
	"context"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"

	"memorymap-backend/application/ports"
)

// CacheConfig configures CachedBackend. Precision is the number of decimal
// places coordinates are rounded to when forming keys; 4 is roughly 11m.
type CacheConfig struct {
	MaxEntries int64
	TTL        time.Duration
	Precision  int
}

// CachedBackend memoises successful lookups, including empty ones.
// Errors are never cached.
type CachedBackend struct {
	next      ports.GeocodeBackend
	cache     *ristretto.Cache
	ttl       time.Duration
	precision int
}

func NewCachedBackend(next ports.GeocodeBackend, cfg CacheConfig) (*CachedBackend, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedBackend{
		next:      next,
		cache:     cache,
		ttl:       cfg.TTL,
		precision: cfg.Precision,
	}, nil
}

func (c *CachedBackend) key(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', c.precision, 64) + "," + strconv.FormatFloat(lng, 'f', c.precision, 64)
}

func (c *CachedBackend) Lookup(ctx context.Context, lat, lng float64) ([]ports.Address, error) {
	key := c.key(lat, lng)
	if v, ok := c.cache.Get(key); ok {
		addrs, _ := v.([]ports.Address)
		return addrs, nil
	}

	addrs, err := c.next.Lookup(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, addrs, 1, c.ttl)
	} else {
		c.cache.Set(key, addrs, 1)
	}
	return addrs, nil
}

func (c *CachedBackend) Close() {
	c.cache.Close()
}
