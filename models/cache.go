package models

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxInputTokens is D_input: served when a model ID is unknown to
// the cache.
const DefaultMaxInputTokens = 200000

// DefaultTTL is the cache's wall-clock staleness window.
const DefaultTTL = 3600 * time.Second

// Info is one model-info record: the upstream's advertised context window
// and a rough cost-per-request hint.
type Info struct {
	ID                 string  `json:"id" yaml:"id"`
	MaxInputTokens      int     `json:"max_input_tokens" yaml:"max_input_tokens"`
	DefaultCreditsUsed float64 `json:"default_credits_used" yaml:"default_credits_used"`
}

// RefillFunc fetches a fresh model list from the upstream.
type RefillFunc func(ctx context.Context) ([]Info, error)

// Cache is the TTL-gated model-info cache (C4). Zero value is not usable;
// construct with NewCache. Safe for concurrent use; readers never observe
// a half-populated map because Update swaps the whole map atomically.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Info
	filledAt   time.Time
	ttl        time.Duration
	fallback   []Info
	refill     RefillFunc
	log        *logrus.Entry

	refillMu    sync.Mutex
	refillInFlt chan struct{}
}

// NewCache builds a cache pre-seeded with the static fallback list (marked
// stale-but-usable) and wired to refill from refill when asked.
func NewCache(fallback []Info, refill RefillFunc, log *logrus.Entry) *Cache {
	return NewCacheWithTTL(fallback, refill, log, DefaultTTL)
}

// NewCacheWithTTL is NewCache with an explicit staleness window, wired to
// MODEL_CACHE_TTL in production (see config.Config.ModelCacheTTL).
func NewCacheWithTTL(fallback []Info, refill RefillFunc, log *logrus.Entry, ttl time.Duration) *Cache {
	c := &Cache{
		entries:  make(map[string]Info),
		ttl:      ttl,
		fallback: fallback,
		refill:   refill,
		log:      log,
	}
	for _, info := range fallback {
		c.entries[info.ID] = info
	}
	return c
}

// Get returns the cached record for modelID, if any.
func (c *Cache) Get(modelID string) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[modelID]
	return info, ok
}

// GetMaxInputTokens returns the model's context window, or
// DefaultMaxInputTokens if the model is unknown to the cache.
func (c *Cache) GetMaxInputTokens(modelID string) int {
	if info, ok := c.Get(modelID); ok && info.MaxInputTokens > 0 {
		return info.MaxInputTokens
	}
	return DefaultMaxInputTokens
}

// Update atomically replaces the cached entries with records, typically
// the result of a successful refill.
func (c *Cache) Update(records []Info) {
	next := make(map[string]Info, len(records))
	for _, r := range records {
		next[r.ID] = r
	}
	c.mu.Lock()
	c.entries = next
	c.filledAt = time.Now()
	c.mu.Unlock()
}

// IsEmpty reports whether the cache currently holds no records at all.
func (c *Cache) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries) == 0
}

// IsStale reports whether the cache was never filled by a real refill, or
// the last refill is older than the TTL.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.filledAt.IsZero() {
		return true
	}
	return time.Since(c.filledAt) > c.ttl
}

// AllIDs returns every model ID currently cached, in no particular order.
func (c *Cache) AllIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// EnsureFresh triggers a refill if the cache is empty or stale. Concurrent
// callers coalesce onto a single in-flight refill; all of them return once
// it completes (or fails, in which case the existing fallback-seeded data
// stays in place and the cache remains marked stale).
func (c *Cache) EnsureFresh(ctx context.Context) {
	if (!c.IsStale() && !c.IsEmpty()) || c.refill == nil {
		return
	}

	c.refillMu.Lock()
	if c.refillInFlt != nil {
		done := c.refillInFlt
		c.refillMu.Unlock()
		<-done
		return
	}
	done := make(chan struct{})
	c.refillInFlt = done
	c.refillMu.Unlock()

	defer func() {
		c.refillMu.Lock()
		c.refillInFlt = nil
		c.refillMu.Unlock()
		close(done)
	}()

	records, err := c.refill(ctx)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("model-info refill failed, serving stale/fallback list")
		}
		if c.IsEmpty() {
			next := make(map[string]Info, len(c.fallback))
			for _, r := range c.fallback {
				next[r.ID] = r
			}
			c.mu.Lock()
			c.entries = next
			c.filledAt = time.Time{} // served, but still stale
			c.mu.Unlock()
		}
		return
	}
	c.Update(records)
}
