package stream

import (
	"sync"
	"time"

	"oibreakout/internal/model"
)

// Cache holds the latest tick per symbol. Only the most recent tick is
// retained; readers never block the websocket read loop beyond a brief
// RLock. Staleness is exposed via Age so callers can decide when to fall
// back to a REST quote.
type Cache struct {
	mu      sync.RWMutex
	ticks   map[string]model.Tick
	updated map[string]time.Time // local receive time, not source timestamp
}

// NewCache creates an empty price cache.
func NewCache() *Cache {
	return &Cache{
		ticks:   make(map[string]model.Tick),
		updated: make(map[string]time.Time),
	}
}

// Update stores the tick as the latest for its symbol.
func (c *Cache) Update(t model.Tick) {
	c.mu.Lock()
	c.ticks[t.Symbol] = t
	c.updated[t.Symbol] = time.Now()
	c.mu.Unlock()
}

// Latest returns the most recent tick for the symbol.
func (c *Cache) Latest(symbol string) (model.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	return t, ok
}

// LTP returns the last traded price for the symbol.
func (c *Cache) LTP(symbol string) (float64, bool) {
	t, ok := c.Latest(symbol)
	if !ok {
		return 0, false
	}
	return t.LTP, true
}

// Age returns how long ago the symbol was last updated.
func (c *Cache) Age(symbol string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.updated[symbol]
	if !ok {
		return 0, false
	}
	return time.Since(ts), true
}

// Fresh returns the LTP only when the entry is younger than maxAge.
func (c *Cache) Fresh(symbol string, maxAge time.Duration) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.updated[symbol]
	if !ok || time.Since(ts) > maxAge {
		return 0, false
	}
	return c.ticks[symbol].LTP, true
}

// Reset drops all cached entries (session rollover).
func (c *Cache) Reset() {
	c.mu.Lock()
	c.ticks = make(map[string]model.Tick)
	c.updated = make(map[string]time.Time)
	c.mu.Unlock()
}
