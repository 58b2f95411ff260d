package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"driver:1", "vehicle:1"}, normalizeKeys([]string{"vehicle:1", "", "driver:1", "vehicle:1"}))
	assert.Empty(t, normalizeKeys(nil))
	assert.Equal(t, "vehicle:abc", LockKey("vehicle", "abc"))
}

func TestMemoryLocker(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	locker := NewMemoryLocker(10*time.Second, clock)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "vehicle:1", "driver:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "driver:1")
	assert.ErrorIs(t, err, ErrLocked)

	// All-or-nothing: the free key is not taken when another is held.
	_, err = locker.Acquire(ctx, "vehicle:2", "vehicle:1")
	assert.ErrorIs(t, err, ErrLocked)
	other, err := locker.Acquire(ctx, "vehicle:2")
	require.NoError(t, err)
	other(ctx)

	release(ctx)
	again, err := locker.Acquire(ctx, "driver:1")
	require.NoError(t, err)

	// An expired lease can be taken over, and the stale release does not
	// free the new holder's key.
	now = now.Add(11 * time.Second)
	takeover, err := locker.Acquire(ctx, "driver:1")
	require.NoError(t, err)
	again(ctx)
	_, err = locker.Acquire(ctx, "driver:1")
	assert.ErrorIs(t, err, ErrLocked)
	takeover(ctx)
}

func TestMemoryLocker_Concurrent(t *testing.T) {
	locker := NewMemoryLocker(time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(ctx, "vehicle:1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMongoLocker_Integration(t *testing.T) {
	database := testDatabase(t)
	locker := NewMongoLocker(database.Collection(CollLocks), time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "vehicle:1", "driver:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "driver:1", "vehicle:9")
	assert.ErrorIs(t, err, ErrLocked)
	n, err := database.Collection(CollLocks).CountDocuments(ctx, map[string]string{"_id": "vehicle:9"})
	require.NoError(t, err)
	assert.Zero(t, n, "partial acquisitions are rolled back")

	release(ctx)
	release2, err := locker.Acquire(ctx, "driver:1")
	require.NoError(t, err)
	release2(ctx)

	expired := NewMongoLocker(database.Collection(CollLocks), time.Minute)
	stale, err := expired.Acquire(ctx, "vehicle:5")
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	takeover, err := expired.Acquire(ctx, "vehicle:5")
	require.NoError(t, err)
	stale(ctx)
	takeover(ctx)
}
