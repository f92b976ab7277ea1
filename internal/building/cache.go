package building

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Cache holds the most recently loaded Set and reloads it on demand.
// Readers never block on a reload.
type Cache struct {
	src    *Source
	onLoad func(*Set)

	mu      sync.Mutex // serializes reloads
	current atomic.Pointer[Set]
}

// NewCache creates an empty cache over src. onLoad, if not nil, runs after
// every successful load.
func NewCache(src *Source, onLoad func(*Set)) *Cache {
	return &Cache{src: src, onLoad: onLoad}
}

// Current returns the loaded set, or nil before the first successful load.
func (c *Cache) Current() *Set {
	return c.current.Load()
}

// Reload loads a fresh set and swaps it in. On failure the previous set
// stays current.
func (c *Cache) Reload(ctx context.Context) (*Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, err := c.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(set)

	zap.L().Info("building: set loaded",
		zap.String("component", "building"),
		zap.String("origin", string(set.Origin)),
		zap.Int("buildings", len(set.Buildings)),
	)
	if c.onLoad != nil {
		c.onLoad(set)
	}
	return set, nil
}
