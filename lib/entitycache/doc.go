// Package entitycache implements a local, in-memory entity cache whose writes
// are serialized per entity by an entitylock.IEntityLocker. It is the kind of
// component the entitylock package is meant for: the cache owns the
// entities, the locker only ever sees their IDs.
//
// Key Features:
//   - Lock-free reads of the last committed value
//   - Read-modify-write updates under the lock of one entity
//   - Bounded-wait updates (TryUpdate)
//   - Multi-entity updates that take the locks in ascending ID order
//   - Monotonic write index per entry (Version)
//
// Implementation Details:
//
//   - Storage: values live in an xsync.MapOf. Every write stores a new entry
//     with the next value of an atomic write index, so readers never observe
//     a partially applied update.
//
//   - Multi-entity updates: UpdateAll sorts and deduplicates the IDs with the
//     locker's Compare before nesting the locks. Acquiring in ascending
//     order is exactly what the locker's deadlock prevention admits, so an
//     UpdateAll never fails with entitylock.ErrDeadlockPrevented unless it
//     is itself called from inside an action holding a higher ID.
//
// Thread Safety:
//
//	All operations are thread-safe. Writers of the same entity are
//	serialized by the locker, writers of different entities run in parallel.
//
// Usage Example:
//
//	locker := entitylock.New[string](nil)
//	accounts := entitycache.New[string, int64](locker)
//
//	err := accounts.UpdateAll(ctx, []string{"alice", "bob"}, func(ctx context.Context, v map[string]int64) error {
//	    v["alice"] -= 10
//	    v["bob"] += 10
//	    return nil
//	})
package entitycache
