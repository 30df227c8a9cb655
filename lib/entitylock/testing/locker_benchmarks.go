package testing

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stden/EntityLocker/lib/entitylock"
)

// RunEntityLockerBenchmarks runs performance benchmarks for an IEntityLocker implementation.
func RunEntityLockerBenchmarks(b *testing.B, name string, factory LockerFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Uncontended", func(b *testing.B) {
			benchmarkUncontended(b, factory())
		})

		b.Run("DistinctIDsParallel", func(b *testing.B) {
			benchmarkDistinctIDs(b, factory())
		})

		b.Run("SameIDParallel", func(b *testing.B) {
			benchmarkSameID(b, factory())
		})

		b.Run("Reentrant", func(b *testing.B) {
			benchmarkReentrant(b, factory())
		})

		b.Run("NestedAscending", func(b *testing.B) {
			benchmarkNestedAscending(b, factory())
		})
	})
}

var noop = func(context.Context) error { return nil }

func benchmarkUncontended(b *testing.B, locker entitylock.IEntityLocker[int]) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = locker.RunWithLock(ctx, 1, noop)
	}
}

func benchmarkDistinctIDs(b *testing.B, locker entitylock.IEntityLocker[int]) {
	var nextID atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		id := int(nextID.Add(1))
		for pb.Next() {
			_ = locker.RunWithLock(ctx, id, noop)
		}
	})
}

func benchmarkSameID(b *testing.B, locker entitylock.IEntityLocker[int]) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_ = locker.RunWithLock(ctx, 1, noop)
		}
	})
}

func benchmarkReentrant(b *testing.B, locker entitylock.IEntityLocker[int]) {
	ctx := context.Background()
	b.ResetTimer()
	_ = locker.RunWithLock(ctx, 1, func(ctx context.Context) error {
		for i := 0; i < b.N; i++ {
			_ = locker.RunWithLock(ctx, 1, noop)
		}
		return nil
	})
}

func benchmarkNestedAscending(b *testing.B, locker entitylock.IEntityLocker[int]) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = locker.RunWithLock(ctx, 1, func(ctx context.Context) error {
			return locker.RunWithLock(ctx, 2, func(ctx context.Context) error {
				return locker.RunWithLock(ctx, 3, noop)
			})
		})
	}
}
