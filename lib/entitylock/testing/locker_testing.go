package testing

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stden/EntityLocker/lib/entitylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LockerFactory is a function that creates a new instance of an IEntityLocker implementation
type LockerFactory func() entitylock.IEntityLocker[int]

const (
	threads    = 1000
	iterations = 1000

	// upper bound for scenarios that must not hang
	deadlockTimeout = 60 * time.Second
)

// RunEntityLockerTests runs a comprehensive test suite for an IEntityLocker implementation.
func RunEntityLockerTests(t *testing.T, name string, factory LockerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("ModifyOneEntityInManyGoroutines", func(t *testing.T) {
			testModifyOneEntity(t, factory())
		})

		t.Run("MutualExclusion", func(t *testing.T) {
			testMutualExclusion(t, factory())
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, factory())
		})

		t.Run("ReentrantLocking", func(t *testing.T) {
			testReentrantLocking(t, factory())
		})

		t.Run("ReentrantTryLock", func(t *testing.T) {
			testReentrantTryLock(t, factory())
		})

		t.Run("DeadlockPrevention", func(t *testing.T) {
			testDeadlockPrevention(t, factory())
		})

		t.Run("OrderingRestoredAfterScope", func(t *testing.T) {
			testOrderingRestored(t, factory())
		})

		t.Run("RejectionHasNoSideEffects", func(t *testing.T) {
			testRejectionHasNoSideEffects(t, factory())
		})

		t.Run("Timeout", func(t *testing.T) {
			testTimeout(t, factory())
		})

		t.Run("NonBlockingTry", func(t *testing.T) {
			testNonBlockingTry(t, factory())
		})

		t.Run("InterruptedWait", func(t *testing.T) {
			testInterruptedWait(t, factory())
		})

		t.Run("CancelledContext", func(t *testing.T) {
			testCancelledContext(t, factory())
		})

		t.Run("ActionErrorReleasesLock", func(t *testing.T) {
			testActionError(t, factory())
		})

		t.Run("ActionPanicReleasesLock", func(t *testing.T) {
			testActionPanic(t, factory())
		})

		t.Run("SharedContextNewEntity", func(t *testing.T) {
			testSharedContextNewEntity(t, factory())
		})

		t.Run("SharedContextAfterScope", func(t *testing.T) {
			testSharedContextAfterScope(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// waitOrFail waits for wg and fails the test if it takes longer than deadlockTimeout
func waitOrFail(t *testing.T, wg *sync.WaitGroup, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadlockTimeout):
		t.Fatalf("%s did not finish within %s (deadlock?)", what, deadlockTimeout)
	}
}

// holdInBackground acquires id in a new goroutine and keeps it until the
// returned release function is called. The release function waits until the
// holder returned.
func holdInBackground(t *testing.T, locker entitylock.IEntityLocker[int], id int) (release func()) {
	t.Helper()
	locked := make(chan struct{})
	unlock := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := locker.RunWithLock(context.Background(), id, func(ctx context.Context) error {
			close(locked)
			<-unlock
			return nil
		})
		assert.NoError(t, err)
	}()

	select {
	case <-locked:
	case <-time.After(deadlockTimeout):
		t.Fatalf("holder could not acquire %d", id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(unlock)
			<-done
		})
	}
}

// requireFree asserts that id can be acquired immediately
func requireFree(t *testing.T, locker entitylock.IEntityLocker[int], id int) {
	t.Helper()
	ran, err := locker.TryRunWithLock(context.Background(), id, 0, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran, "expected entity %d to be free", id)
}

// enter counts a goroutine into a protected section and records the highest
// number of goroutines seen inside at once
func enter(inside, maxInside *atomic.Int32) {
	n := inside.Add(1)
	for {
		m := maxInside.Load()
		if n <= m || maxInside.CompareAndSwap(m, n) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testModifyOneEntity(t *testing.T, locker entitylock.IEntityLocker[int]) {
	const counterID = 1
	counter := 0

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			err := locker.RunWithLock(context.Background(), counterID, func(context.Context) error {
				for j := 0; j < iterations; j++ {
					counter++
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	waitOrFail(t, &wg, "counter goroutines")

	assert.Equal(t, threads*iterations, counter)
}

func testMutualExclusion(t *testing.T, locker entitylock.IEntityLocker[int]) {
	const (
		ids        = 4
		goroutines = 64
		rounds     = 200
	)
	var inside [ids]atomic.Int32
	var violations atomic.Int32

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				id := (g + r) % ids
				err := locker.RunWithLock(context.Background(), id, func(context.Context) error {
					if inside[id].Add(1) != 1 {
						violations.Add(1)
					}
					runtime.Gosched()
					inside[id].Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}
		}(g)
	}
	waitOrFail(t, &wg, "mutual exclusion goroutines")

	assert.Zero(t, violations.Load(), "two goroutines ran an action for the same entity concurrently")
}

func testIsolation(t *testing.T, locker entitylock.IEntityLocker[int]) {
	release := holdInBackground(t, locker, 1)
	defer release()

	done := make(chan error, 1)
	go func() {
		done <- locker.RunWithLock(context.Background(), 2, func(context.Context) error {
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("locking entity 2 was blocked by a holder of entity 1")
	}
}

func testReentrantLocking(t *testing.T, locker entitylock.IEntityLocker[int]) {
	const (
		counterID  = 1
		goroutines = 100
	)
	counter := 0

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				err := locker.RunWithLock(context.Background(), counterID, func(ctx context.Context) error {
					counter++
					return locker.RunWithLock(ctx, counterID, func(context.Context) error {
						counter++
						return nil
					})
				})
				assert.NoError(t, err)
			}
		}()
	}
	waitOrFail(t, &wg, "reentrant goroutines")

	assert.Equal(t, 2*goroutines*iterations, counter)
	requireFree(t, locker, counterID)
}

func testReentrantTryLock(t *testing.T, locker entitylock.IEntityLocker[int]) {
	var inner, innermost bool
	err := locker.RunWithLock(context.Background(), 7, func(ctx context.Context) error {
		ran, err := locker.TryRunWithLock(ctx, 7, 0, func(ctx context.Context) error {
			inner = true
			return locker.RunWithLock(ctx, 7, func(context.Context) error {
				innermost = true
				return nil
			})
		})
		require.NoError(t, err)
		require.True(t, ran)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, inner)
	assert.True(t, innermost)

	// the entity stays locked until the outermost scope ends
	var heldAfterInner bool
	err = locker.RunWithLock(context.Background(), 8, func(ctx context.Context) error {
		if err := locker.RunWithLock(ctx, 8, func(context.Context) error { return nil }); err != nil {
			return err
		}
		// a new call chain (background context) must not get it
		ran, err := locker.TryRunWithLock(context.Background(), 8, 0, func(context.Context) error { return nil })
		heldAfterInner = !ran
		return err
	})
	require.NoError(t, err)
	assert.True(t, heldAfterInner)
	requireFree(t, locker, 8)
}

func testDeadlockPrevention(t *testing.T, locker entitylock.IEntityLocker[int]) {
	var (
		counter12          atomic.Int32
		deadlockPrevented  atomic.Bool
		innerCodeCalled    atomic.Bool
		unexpectedFailures atomic.Int32
	)

	var wg sync.WaitGroup
	wg.Add(2)

	// goroutine #1: 1 -> 2
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			err := locker.RunWithLock(context.Background(), 1, func(ctx context.Context) error {
				return locker.RunWithLock(ctx, 2, func(context.Context) error {
					counter12.Add(1)
					return nil
				})
			})
			if err != nil {
				unexpectedFailures.Add(1)
			}
		}
	}()

	// goroutine #2: 2 -> 1
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			err := locker.RunWithLock(context.Background(), 2, func(ctx context.Context) error {
				err := locker.RunWithLock(ctx, 1, func(context.Context) error {
					innerCodeCalled.Store(true)
					return nil
				})
				var deadlockErr *entitylock.DeadlockError[int]
				if errors.As(err, &deadlockErr) && deadlockErr.Held == 2 && deadlockErr.Requested == 1 {
					deadlockPrevented.Store(true)
					return nil
				}
				return err
			})
			if err != nil {
				unexpectedFailures.Add(1)
			}
		}
	}()

	waitOrFail(t, &wg, "deadlock scenario")

	assert.True(t, deadlockPrevented.Load(), "deadlock prevented")
	assert.False(t, innerCodeCalled.Load(), "inner code should not be called")
	assert.EqualValues(t, iterations, counter12.Load())
	assert.Zero(t, unexpectedFailures.Load())
}

func testOrderingRestored(t *testing.T, locker entitylock.IEntityLocker[int]) {
	var order []int
	err := locker.RunWithLock(context.Background(), 3, func(ctx context.Context) error {
		order = append(order, 3)
		if err := locker.RunWithLock(ctx, 5, func(context.Context) error {
			order = append(order, 5)
			return nil
		}); err != nil {
			return err
		}
		// 5 was released, the chain is back at 3
		return locker.RunWithLock(ctx, 4, func(ctx context.Context) error {
			order = append(order, 4)
			return locker.RunWithLock(ctx, 4, func(context.Context) error {
				order = append(order, 4)
				return nil
			})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 4, 4}, order)

	// a fresh chain has no ordering state
	requireFree(t, locker, 1)
}

func testRejectionHasNoSideEffects(t *testing.T, locker entitylock.IEntityLocker[int]) {
	err := locker.RunWithLock(context.Background(), 10, func(ctx context.Context) error {
		var called bool
		ran, err := locker.TryRunWithLock(ctx, 9, time.Second, func(context.Context) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, entitylock.ErrDeadlockPrevented)
		require.False(t, ran)
		require.False(t, called)

		// 9 must not have been locked by the rejected attempt
		requireFree(t, locker, 9)

		// the chain can continue with higher IDs
		return locker.RunWithLock(ctx, 11, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func testTimeout(t *testing.T, locker entitylock.IEntityLocker[int]) {
	const timeout = 50 * time.Millisecond
	release := holdInBackground(t, locker, 1)

	var called atomic.Bool
	start := time.Now()
	ran, err := locker.TryRunWithLock(context.Background(), 1, timeout, func(context.Context) error {
		called.Store(true)
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err, "timeout must not be reported as error")
	assert.False(t, ran)
	assert.False(t, called.Load())
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 5*time.Second)

	// the holder is unaffected and can release normally
	release()
	requireFree(t, locker, 1)
}

func testNonBlockingTry(t *testing.T, locker entitylock.IEntityLocker[int]) {
	requireFree(t, locker, 1)

	release := holdInBackground(t, locker, 1)
	defer release()

	for _, timeout := range []time.Duration{0, -time.Second} {
		ran, err := locker.TryRunWithLock(context.Background(), 1, timeout, func(context.Context) error {
			t.Error("action must not run on a held entity")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ran)
	}
}

func testInterruptedWait(t *testing.T, locker entitylock.IEntityLocker[int]) {
	release := holdInBackground(t, locker, 1)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := locker.RunWithLock(ctx, 1, func(context.Context) error {
		t.Error("action must not run after an interrupted wait")
		return nil
	})
	require.ErrorIs(t, err, entitylock.ErrInterruptedWait)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel2()
	}()
	ran, err := locker.TryRunWithLock(ctx2, 1, time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, entitylock.ErrInterruptedWait)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)

	release()
	requireFree(t, locker, 1)
}

func testCancelledContext(t *testing.T, locker entitylock.IEntityLocker[int]) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.RunWithLock(ctx, 1, func(context.Context) error {
		t.Error("action must not run with a cancelled context")
		return nil
	})
	require.ErrorIs(t, err, entitylock.ErrInterruptedWait)
	requireFree(t, locker, 1)
}

func testActionError(t *testing.T, locker entitylock.IEntityLocker[int]) {
	errAction := errors.New("action failed")

	err := locker.RunWithLock(context.Background(), 1, func(ctx context.Context) error {
		return locker.RunWithLock(ctx, 2, func(context.Context) error {
			return errAction
		})
	})
	require.ErrorIs(t, err, errAction)

	ran, err := locker.TryRunWithLock(context.Background(), 3, time.Second, func(context.Context) error {
		return errAction
	})
	require.ErrorIs(t, err, errAction)
	assert.True(t, ran, "ran must be true when the action itself failed")

	requireFree(t, locker, 1)
	requireFree(t, locker, 2)
	requireFree(t, locker, 3)
}

func testActionPanic(t *testing.T, locker entitylock.IEntityLocker[int]) {
	func() {
		defer func() {
			assert.Equal(t, "boom", recover())
		}()
		_ = locker.RunWithLock(context.Background(), 1, func(ctx context.Context) error {
			return locker.RunWithLock(ctx, 1, func(context.Context) error {
				panic("boom")
			})
		})
	}()

	requireFree(t, locker, 1)
}

// testSharedContextNewEntity hands the context of an action to several
// goroutines that all lock an entity the chain does not hold yet. They must
// not be inside that entity at the same time.
func testSharedContextNewEntity(t *testing.T, locker entitylock.IEntityLocker[int]) {
	const goroutines = 8
	var (
		inside    atomic.Int32
		maxInside atomic.Int32
		counter   int
	)

	err := locker.RunWithLock(context.Background(), 1, func(ctx context.Context) error {
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for g := 0; g < goroutines; g++ {
			go func() {
				defer wg.Done()
				err := locker.RunWithLock(ctx, 2, func(context.Context) error {
					enter(&inside, &maxInside)
					old := counter
					time.Sleep(5 * time.Millisecond)
					counter = old + 1
					inside.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		waitOrFail(t, &wg, "goroutines sharing the action context")
		return nil
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, maxInside.Load(), "goroutines sharing a context were inside entity 2 concurrently")
	assert.Equal(t, goroutines, counter)
	requireFree(t, locker, 1)
	requireFree(t, locker, 2)
}

// testSharedContextAfterScope uses the context of an action after the action
// returned. The entity is no longer held by that chain, so two goroutines
// using the stale context must still exclude each other.
func testSharedContextAfterScope(t *testing.T, locker entitylock.IEntityLocker[int]) {
	var stale context.Context
	require.NoError(t, locker.RunWithLock(context.Background(), 1, func(ctx context.Context) error {
		stale = ctx
		return nil
	}))

	var (
		inside    atomic.Int32
		maxInside atomic.Int32
		wg        sync.WaitGroup
	)
	wg.Add(2)
	for g := 0; g < 2; g++ {
		go func() {
			defer wg.Done()
			err := locker.RunWithLock(stale, 1, func(context.Context) error {
				enter(&inside, &maxInside)
				time.Sleep(20 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	waitOrFail(t, &wg, "goroutines using a stale context")

	assert.EqualValues(t, 1, maxInside.Load())
	requireFree(t, locker, 1)
}
