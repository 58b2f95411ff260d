package auth

import (
	"sync"
	"time"
)

// Verification is the cached outcome of checking that a token's user still
// exists and is active.
type Verification struct {
	UserID string
	Active bool
}

type cacheEntry struct {
	result    Verification
	expiresAt time.Time
}

// VerificationCache remembers verification results per token for a short
// time so that bursts of requests do not each hit the user store.
type VerificationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewVerificationCache creates a cache. A nil now uses time.Now; a
// non-positive ttl disables caching.
func NewVerificationCache(ttl time.Duration, now func() time.Time) *VerificationCache {
	if now == nil {
		now = time.Now
	}
	return &VerificationCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached result for token if it has not expired.
func (c *VerificationCache) Get(token string) (Verification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return Verification{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, token)
		return Verification{}, false
	}
	return e.result, true
}

// Put stores a result for token and drops expired entries.
func (c *VerificationCache) Put(token string, v Verification) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[token] = cacheEntry{result: v, expiresAt: now.Add(c.ttl)}
}

// Invalidate forgets every cached result for userID, e.g. after the user
// changes their password.
func (c *VerificationCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.result.UserID == userID {
			delete(c.entries, k)
		}
	}
}

// Len reports how many entries are stored.
func (c *VerificationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
