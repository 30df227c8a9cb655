package entitycache

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stden/EntityLocker/lib/entitylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache[V any](t *testing.T) (ICache[int, V], *entitylock.EntityLocker[int]) {
	locker := entitylock.New[int](&entitylock.Options{Name: t.Name()})
	return New[int, V](locker), locker
}

func TestPutGetDelete(t *testing.T) {
	cache, _ := newTestCache[string](t)
	ctx := context.Background()

	_, ok := cache.Get(1)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, 1, "one"))
	v, ok := cache.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	first, _ := cache.Entry(1)
	require.NoError(t, cache.Put(ctx, 1, "uno"))
	second, _ := cache.Entry(1)
	assert.Equal(t, "uno", second.Value)
	assert.Greater(t, second.Version, first.Version)

	require.NoError(t, cache.Delete(ctx, 1))
	_, ok = cache.Get(1)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestConcurrentUpdatesOfOneEntity(t *testing.T) {
	cache, locker := newTestCache[int](t)
	const (
		goroutines = 50
		increments = 200
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				err := cache.Update(context.Background(), 1, func(_ context.Context, old int, _ bool) (int, bool, error) {
					return old + 1, false, nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, _ := cache.Get(1)
	assert.Equal(t, goroutines*increments, v)
	assert.Zero(t, locker.Handles())
}

func TestUpdateDeleteAndError(t *testing.T) {
	cache, _ := newTestCache[int](t)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, 1, 10))

	errUpdate := errors.New("rejected")
	err := cache.Update(ctx, 1, func(context.Context, int, bool) (int, bool, error) {
		return 0, false, errUpdate
	})
	require.ErrorIs(t, err, errUpdate)
	v, _ := cache.Get(1)
	assert.Equal(t, 10, v, "a failed update must not change the value")

	require.NoError(t, cache.Update(ctx, 1, func(_ context.Context, old int, loaded bool) (int, bool, error) {
		assert.True(t, loaded)
		assert.Equal(t, 10, old)
		return 0, true, nil
	}))
	_, ok := cache.Get(1)
	assert.False(t, ok)
}

func TestTryUpdateTimesOut(t *testing.T) {
	cache, locker := newTestCache[int](t)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = locker.RunWithLock(context.Background(), 1, func(context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	updated, err := cache.TryUpdate(context.Background(), 1, 20*time.Millisecond, func(context.Context, int, bool) (int, bool, error) {
		t.Error("update must not run while the entity is locked")
		return 1, false, nil
	})
	require.NoError(t, err)
	assert.False(t, updated)

	close(release)
	<-done

	updated, err = cache.TryUpdate(context.Background(), 1, 20*time.Millisecond, func(context.Context, int, bool) (int, bool, error) {
		return 1, false, nil
	})
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestUpdateAllTransfersPreserveTotal(t *testing.T) {
	cache, locker := newTestCache[int](t)
	ctx := context.Background()
	const (
		accounts   = 10
		initial    = 1000
		goroutines = 20
		transfers  = 200
	)
	for id := 0; id < accounts; id++ {
		require.NoError(t, cache.Put(ctx, id, initial))
	}

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < transfers; i++ {
				from, to := rnd.Intn(accounts), rnd.Intn(accounts)
				amount := rnd.Intn(50)
				// the IDs are deliberately passed in random order
				err := cache.UpdateAll(ctx, []int{from, to}, func(_ context.Context, v map[int]int) error {
					v[from] -= amount
					v[to] += amount
					return nil
				})
				assert.NoError(t, err)
			}
		}(int64(g))
	}
	wg.Wait()

	total := 0
	for id := 0; id < accounts; id++ {
		v, ok := cache.Get(id)
		require.True(t, ok)
		total += v
	}
	assert.Equal(t, accounts*initial, total)
	assert.Zero(t, locker.Stats().DeadlocksPrevented)
}

func TestUpdateAllDeletesAndRejectsUnlocked(t *testing.T) {
	cache, _ := newTestCache[string](t)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, 1, "a"))
	require.NoError(t, cache.Put(ctx, 2, "b"))

	require.NoError(t, cache.UpdateAll(ctx, []int{2, 1, 2, 3}, func(_ context.Context, v map[int]string) error {
		assert.Equal(t, map[int]string{1: "a", 2: "b"}, v)
		delete(v, 1)
		v[3] = "c"
		return nil
	}))
	_, ok := cache.Get(1)
	assert.False(t, ok)
	v, _ := cache.Get(3)
	assert.Equal(t, "c", v)

	err := cache.UpdateAll(ctx, []int{2}, func(_ context.Context, v map[int]string) error {
		v[4] = "d"
		return nil
	})
	require.Error(t, err)
	_, ok = cache.Get(4)
	assert.False(t, ok)
}

func TestUpdateAllInsideHigherLockIsRejected(t *testing.T) {
	cache, locker := newTestCache[int](t)

	err := locker.RunWithLock(context.Background(), 5, func(ctx context.Context) error {
		return cache.UpdateAll(ctx, []int{1, 9}, func(context.Context, map[int]int) error {
			t.Error("must not run")
			return nil
		})
	})
	require.ErrorIs(t, err, entitylock.ErrDeadlockPrevented)

	// same entity and higher ones are fine
	err = locker.RunWithLock(context.Background(), 5, func(ctx context.Context) error {
		return cache.UpdateAll(ctx, []int{5, 9}, func(_ context.Context, v map[int]int) error {
			v[5], v[9] = 5, 9
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestUpdatesFromGoroutinesSharingAnActionContext(t *testing.T) {
	cache, locker := newTestCache[int](t)
	const (
		goroutines = 10
		increments = 50
	)

	err := locker.RunWithLock(context.Background(), 0, func(ctx context.Context) error {
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for g := 0; g < goroutines; g++ {
			go func() {
				defer wg.Done()
				for i := 0; i < increments; i++ {
					err := cache.Update(ctx, 1, func(_ context.Context, old int, _ bool) (int, bool, error) {
						time.Sleep(time.Microsecond)
						return old + 1, false, nil
					})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()
		return nil
	})
	require.NoError(t, err)

	v, _ := cache.Get(1)
	assert.Equal(t, goroutines*increments, v, "updates were lost")
}
