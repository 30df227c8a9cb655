// Package entitylock implements row-level-style locking keyed by arbitrary,
// totally ordered entity IDs. It is meant for components that manage
// storage and caching of entities and need to serialize operations on one
// entity without serializing operations on unrelated entities.
//
// The locker never looks at entities themselves, only at their IDs (primary
// keys). It does not persist anything and does not coordinate across
// processes.
//
// Core Functionality:
//   - Per-ID mutual exclusion (RunWithLock)
//   - Bounded-wait acquisition (TryRunWithLock)
//   - Reentrant acquisition by the call chain that already holds an ID
//   - Deadlock prevention for nested acquisitions of different IDs
//
// Implementation Approach:
//
//	Lock Registry: every ID maps to a single handle stored in an
//	xsync.MapOf. Handles are created lazily and exactly once per ID. With
//	PolicyReclaim (default) each acquisition attempt takes a reference on
//	the handle inside MapOf.Compute and gives it back the same way after
//	unlocking. The entry is removed only when no reference is left and the
//	handle is not held, both checked under the same bucket lock that
//	guards creation. With PolicyRetain handles are never removed.
//
//	Reentrant Handle: an explicit (owner, holds) pair guarded by a mutex,
//	plus a one-slot channel used as the exclusive slot so that waiting can
//	be bounded by a timer or by context cancellation.
//
//	Ordering Guard: the context handed to an action carries the list of
//	acquisitions of the call chain (ID and owner token of each) and the
//	highest ID held by that chain. A nested acquisition of an ID strictly
//	lower than that value is rejected with a *DeadlockError before any
//	lock is attempted. Acquiring IDs in
//	non-decreasing order on every chain rules out circular waits.
//
// Call Chains and Contexts:
//
//	Go has no thread identity, so ownership follows the context. Nested
//	calls MUST use the context passed into the action; calling back into
//	the locker with an outer context is treated as a different call chain
//	and will block on an ID the chain already holds. Every non-reentrant
//	acquisition gets a fresh owner token; reentry is only granted for an ID
//	in the context's acquisition list whose token still owns the handle.
//	Handing the action's context to other goroutines therefore shares the
//	IDs the chain holds at that point, while IDs they lock afterwards stay
//	mutually exclusive among them.
//
// Usage Example:
//
//	locker := entitylock.New[int64](nil)
//
//	err := locker.RunWithLock(ctx, 42, func(ctx context.Context) error {
//	    // exclusive access to entity 42
//	    return locker.RunWithLock(ctx, 43, func(ctx context.Context) error {
//	        // 42 and 43 held
//	        return nil
//	    })
//	})
//
//	ran, err := locker.TryRunWithLock(ctx, 42, 50*time.Millisecond, action)
//	if err == nil && !ran {
//	    // entity 42 was busy, action did not run
//	}
//
// Errors:
//
//	ErrDeadlockPrevented is returned (as *DeadlockError) when the ordering
//	guard rejects an acquisition. ErrInterruptedWait is returned when the
//	context ends while waiting for a handle. A timeout in TryRunWithLock is
//	not an error. Errors returned by the action are passed through after
//	the lock was released.
package entitylock
