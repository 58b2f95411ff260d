package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerificationCache_ExpiresWithClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewVerificationCache(30*time.Second, func() time.Time { return now })

	_, ok := cache.Get("token-a")
	assert.False(t, ok)

	cache.Put("token-a", Verification{UserID: "u1", Active: true})
	v, ok := cache.Get("token-a")
	assert.True(t, ok)
	assert.Equal(t, "u1", v.UserID)
	assert.True(t, v.Active)

	now = now.Add(29 * time.Second)
	_, ok = cache.Get("token-a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = cache.Get("token-a")
	assert.False(t, ok, "entries expire exactly at ttl")
	assert.Zero(t, cache.Len())
}

func TestVerificationCache_PutPrunesExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewVerificationCache(time.Second, func() time.Time { return now })

	cache.Put("a", Verification{UserID: "u1", Active: true})
	cache.Put("b", Verification{UserID: "u2", Active: true})
	assert.Equal(t, 2, cache.Len())

	now = now.Add(2 * time.Second)
	cache.Put("c", Verification{UserID: "u3", Active: false})
	assert.Equal(t, 1, cache.Len())
}

func TestVerificationCache_Invalidate(t *testing.T) {
	cache := NewVerificationCache(time.Minute, nil)
	cache.Put("a", Verification{UserID: "u1", Active: true})
	cache.Put("b", Verification{UserID: "u1", Active: true})
	cache.Put("c", Verification{UserID: "u2", Active: true})

	cache.Invalidate("u1")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func TestVerificationCache_Disabled(t *testing.T) {
	cache := NewVerificationCache(0, nil)
	cache.Put("a", Verification{UserID: "u1", Active: true})
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestVerificationCache_IndependentInstances(t *testing.T) {
	a := NewVerificationCache(time.Minute, nil)
	b := NewVerificationCache(time.Minute, nil)
	a.Put("token", Verification{UserID: "u1", Active: true})

	_, ok := b.Get("token")
	assert.False(t, ok)
}
