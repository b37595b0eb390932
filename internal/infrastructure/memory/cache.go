package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// PositionCache caché de posiciones en proceso con expiración (nodos sin Redis y pruebas).
type PositionCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[entity.PositionKey]cacheEntry
}

type cacheEntry struct {
	pos     entity.StockPosition
	expires time.Time
}

// NewPositionCache construye la caché; now nil usa time.Now.
func NewPositionCache(now func() time.Time) *PositionCache {
	if now == nil {
		now = time.Now
	}
	return &PositionCache{now: now, entries: make(map[entity.PositionKey]cacheEntry)}
}

func (c *PositionCache) Get(_ context.Context, key entity.PositionKey) (*entity.StockPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	pos := e.pos
	return &pos, nil
}

func (c *PositionCache) Set(_ context.Context, pos *entity.StockPosition, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pos.Key()] = cacheEntry{pos: *pos, expires: c.now().Add(ttl)}
	return nil
}

func (c *PositionCache) Delete(_ context.Context, keys ...entity.PositionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// Len número de entradas (vigentes o no).
func (c *PositionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
