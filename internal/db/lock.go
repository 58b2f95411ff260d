package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrLocked is returned when another request holds one of the keys.
var ErrLocked = errors.New("resource is locked by another request")

// DefaultLockTTL bounds how long a crashed holder can block a resource.
const DefaultLockTTL = 30 * time.Second

// ReleaseFunc gives back every key taken by one Acquire call.
type ReleaseFunc func(ctx context.Context)

// LockKey builds the lock key of a resource, e.g. "driver:65f0...".
func LockKey(kind, id string) string {
	return kind + ":" + id
}

// normalizeKeys sorts and deduplicates keys so that concurrent callers take
// them in the same order.
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MongoLocker is an advisory lock backed by a collection with a unique _id
// per key and a TTL index on expires_at. It serialises check-then-insert
// across service instances.
type MongoLocker struct {
	Collection *mongo.Collection
	TTL        time.Duration
	now        func() time.Time
}

// NewMongoLocker creates a locker on the given collection.
func NewMongoLocker(c *mongo.Collection, ttl time.Duration) *MongoLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &MongoLocker{Collection: c, TTL: ttl, now: time.Now}
}

// Acquire takes every key or none. It fails fast with ErrLocked when a key
// is held and not yet expired.
func (l *MongoLocker) Acquire(ctx context.Context, keys ...string) (ReleaseFunc, error) {
	if l.Collection == nil {
		return nil, ErrNilCollection
	}
	owner := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func(ctx context.Context) {
		if len(held) == 0 {
			return
		}
		_, err := l.Collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": held}, "owner": owner})
		if err != nil {
			log.WithError(err).WithField("keys", held).Warn("Failed to release booking locks")
		}
	}

	for _, key := range normalizeKeys(keys) {
		now := l.now()
		// The TTL monitor runs once a minute; clear stale holders eagerly.
		if _, err := l.Collection.DeleteOne(ctx, bson.M{"_id": key, "expires_at": bson.M{"$lte": now}}); err != nil {
			release(ctx)
			return nil, fmt.Errorf("clear expired lock %s: %w", key, err)
		}
		_, err := l.Collection.InsertOne(ctx, bson.M{
			"_id":        key,
			"owner":      owner,
			"expires_at": now.Add(l.TTL),
			"created_at": now,
		})
		if err != nil {
			release(ctx)
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%s: %w", key, ErrLocked)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, key)
	}
	return release, nil
}

// MemoryLocker is the single-process equivalent of MongoLocker.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]memoryLease
	seq     uint64
	ttl     time.Duration
	nowFunc func() time.Time
}

type memoryLease struct {
	owner     uint64
	expiresAt time.Time
}

// NewMemoryLocker creates an in-process locker. A nil now uses time.Now.
func NewMemoryLocker(ttl time.Duration, now func() time.Time) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{held: make(map[string]memoryLease), ttl: ttl, nowFunc: now}
}

// Acquire takes every key or none.
func (l *MemoryLocker) Acquire(_ context.Context, keys ...string) (ReleaseFunc, error) {
	keys = normalizeKeys(keys)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	for _, key := range keys {
		if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
			return nil, fmt.Errorf("%s: %w", key, ErrLocked)
		}
	}
	l.seq++
	owner := l.seq
	for _, key := range keys {
		l.held[key] = memoryLease{owner: owner, expiresAt: now.Add(l.ttl)}
	}

	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, key := range keys {
			if lease, ok := l.held[key]; ok && lease.owner == owner {
				delete(l.held, key)
			}
		}
	}, nil
}
