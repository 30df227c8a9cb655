package entitylock

import (
	"cmp"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportDifferentIDTypes(t *testing.T) {
	ints := New[int64](nil)
	var passed bool
	require.NoError(t, ints.RunWithLock(context.Background(), 1, func(context.Context) error {
		passed = true
		return nil
	}))
	assert.True(t, passed)

	strs := New[string](nil)
	passed = false
	require.NoError(t, strs.RunWithLock(context.Background(), "This is test", func(context.Context) error {
		passed = true
		return nil
	}))
	assert.True(t, passed)

	type rowKey struct {
		Table string
		Row   int
	}
	rows := NewWithCompare[rowKey](func(a, b rowKey) int {
		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	}, nil)

	err := rows.RunWithLock(context.Background(), rowKey{"users", 2}, func(ctx context.Context) error {
		return rows.RunWithLock(ctx, rowKey{"users", 1}, func(context.Context) error {
			t.Error("lower row must be rejected")
			return nil
		})
	})
	var deadlockErr *DeadlockError[rowKey]
	require.ErrorAs(t, err, &deadlockErr)
	assert.Equal(t, rowKey{"users", 2}, deadlockErr.Held)
	assert.Equal(t, rowKey{"users", 1}, deadlockErr.Requested)
}

func TestNewWithNilCompare(t *testing.T) {
	assert.Panics(t, func() {
		NewWithCompare[int](nil, nil)
	})
}

func TestMaxHeld(t *testing.T) {
	locker := New[int](nil)

	_, ok := locker.MaxHeld(context.Background())
	assert.False(t, ok)

	err := locker.RunWithLock(context.Background(), 2, func(ctx context.Context) error {
		maxID, ok := locker.MaxHeld(ctx)
		assert.True(t, ok)
		assert.Equal(t, 2, maxID)

		return locker.RunWithLock(ctx, 9, func(inner context.Context) error {
			maxID, _ := locker.MaxHeld(inner)
			assert.Equal(t, 9, maxID)

			// the outer context is unchanged
			maxID, _ = locker.MaxHeld(ctx)
			assert.Equal(t, 2, maxID)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestLockersHaveIndependentOrdering(t *testing.T) {
	accounts := New[int](nil)
	orders := New[int](nil)

	err := accounts.RunWithLock(context.Background(), 100, func(ctx context.Context) error {
		// a different locker does not see the ordering state of accounts
		return orders.RunWithLock(ctx, 1, func(ctx context.Context) error {
			// but accounts still does
			return accounts.RunWithLock(ctx, 50, func(context.Context) error { return nil })
		})
	})
	require.ErrorIs(t, err, ErrDeadlockPrevented)
	assert.EqualValues(t, 1, accounts.Stats().DeadlocksPrevented)
	assert.Zero(t, orders.Stats().DeadlocksPrevented)
}

func TestDeadlockErrorMessage(t *testing.T) {
	err := error(&DeadlockError[int]{Held: 2, Requested: 1})
	assert.Equal(t, "entitylock: deadlock prevented: 2 > 1", err.Error())
	assert.True(t, errors.Is(err, ErrDeadlockPrevented))
	assert.False(t, errors.Is(err, ErrInterruptedWait))
}

func TestOuterContextIsANewCallChain(t *testing.T) {
	locker := New[int](nil)
	outer := context.Background()

	err := locker.RunWithLock(outer, 1, func(context.Context) error {
		// using the outer context is a different call chain: no reentrancy
		ran, err := locker.TryRunWithLock(outer, 1, 0, func(context.Context) error { return nil })
		assert.False(t, ran)
		return err
	})
	require.NoError(t, err)
}

func TestReentryFollowsTheScopeChain(t *testing.T) {
	locker := New[int](&Options{Name: t.Name(), Policy: PolicyRetain})

	err := locker.RunWithLock(context.Background(), 3, func(ctx context.Context) error {
		return locker.RunWithLock(ctx, 5, func(ctx context.Context) error {
			s := locker.scopeFrom(ctx)
			owner5, ok := s.ownerOf(5)
			require.True(t, ok)
			owner3, ok := s.ownerOf(3)
			require.True(t, ok)
			assert.NotEqual(t, owner3, owner5, "every acquisition gets its own token")
			_, ok = s.ownerOf(4)
			assert.False(t, ok)

			return locker.RunWithLock(ctx, 5, func(context.Context) error { return nil })
		})
	})
	require.NoError(t, err)

	stats := locker.Stats()
	assert.EqualValues(t, 2, stats.Acquired)
	assert.EqualValues(t, 1, stats.Reentered)
}
