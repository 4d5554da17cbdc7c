package decipher

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	m         Map
	expiresAt time.Time
}

// Cached memoizes successful results of another Decipherer for a fixed TTL.
// Failures are never cached. Stream URLs expire upstream, so keep the TTL
// well below their lifetime.
type Cached struct {
	next Decipherer
	ttl  time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	data map[string]cacheEntry
}

// NewCached wraps next. A non-positive ttl returns next unchanged.
func NewCached(next Decipherer, ttl time.Duration) Decipherer {
	if ttl <= 0 {
		return next
	}
	return &Cached{next: next, ttl: ttl, now: time.Now, data: make(map[string]cacheEntry)}
}

func (c *Cached) Name() string { return c.next.Name() }

// Files forwards to the wrapped decipherer when it uses hand-off files.
func (c *Cached) Files(videoID string) (string, string) {
	if h, ok := c.next.(HandOff); ok {
		return h.Files(videoID)
	}
	return "", ""
}

func (c *Cached) Decipher(ctx context.Context, req Request) (Map, error) {
	key := req.VideoID + "|" + req.PlayerJSURL
	if m, ok := c.get(key); ok {
		return m, nil
	}
	m, err := c.next.Decipher(ctx, req)
	if err != nil {
		return nil, err
	}
	c.set(key, m)
	return m, nil
}

func (c *Cached) get(key string) (Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.m, true
}

func (c *Cached) set(key string, m Map) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
		}
	}
	c.data[key] = cacheEntry{m: m, expiresAt: now.Add(c.ttl)}
}
