package entitylock

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCountOutcomes(t *testing.T) {
	locker := New[int](&Options{Name: "stats", Policy: PolicyRetain})
	ctx := context.Background()

	require.NoError(t, locker.RunWithLock(ctx, 1, func(ctx context.Context) error {
		// reentered
		require.NoError(t, locker.RunWithLock(ctx, 1, func(context.Context) error { return nil }))
		// deadlock prevented
		require.ErrorIs(t, locker.RunWithLock(ctx, 0, func(context.Context) error { return nil }), ErrDeadlockPrevented)
		// timeout (new call chain)
		ran, err := locker.TryRunWithLock(context.Background(), 1, time.Millisecond, func(context.Context) error { return nil })
		require.NoError(t, err)
		require.False(t, ran)
		// interrupted
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, locker.RunWithLock(cancelled, 1, func(context.Context) error { return nil }), ErrInterruptedWait)
		return nil
	}))

	stats := locker.Stats()
	assert.EqualValues(t, 1, stats.Acquired)
	assert.EqualValues(t, 1, stats.Reentered)
	assert.EqualValues(t, 1, stats.DeadlocksPrevented)
	assert.EqualValues(t, 1, stats.Timeouts)
	assert.EqualValues(t, 1, stats.Interrupted)
	assert.Equal(t, 1, stats.Handles)
	assert.Contains(t, stats.String(), "deadlocks_prevented=1")
}

func TestWritePrometheus(t *testing.T) {
	locker := New[string](&Options{Name: "prom"})
	assert.Equal(t, "prom", locker.Name())
	assert.Equal(t, "default", New[string](&Options{}).Name())
	require.NoError(t, locker.RunWithLock(context.Background(), "a", func(context.Context) error { return nil }))

	var buf bytes.Buffer
	locker.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `entitylock_acquired_total{locker="prom"} 1`)
	assert.Contains(t, out, `entitylock_reclaimed_total{locker="prom"} 1`)
	assert.Contains(t, out, `entitylock_handles{locker="prom"} 0`)
	assert.Contains(t, out, `entitylock_wait_seconds_count{locker="prom"} 1`)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Retain")
	require.NoError(t, err)
	assert.Equal(t, PolicyRetain, p)

	p, err = ParsePolicy(" reclaim ")
	require.NoError(t, err)
	assert.Equal(t, PolicyReclaim, p)

	_, err = ParsePolicy("forever")
	assert.Error(t, err)
}
