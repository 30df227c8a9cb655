package entitylock

import (
	"context"
	"time"
)

// Action is the protected code run while an entity lock is held. The context
// it receives carries the lock ownership and must be used for nested calls.
type Action func(ctx context.Context) error

// IEntityLocker defines the interface for per-entity locking.
type IEntityLocker[ID comparable] interface {
	// RunWithLock blocks until the lock for id is acquired, runs action and
	// releases the lock. Return the error of the action, a *DeadlockError if
	// the acquisition was rejected, or an error wrapping ErrInterruptedWait if
	// ctx ended while waiting.
	RunWithLock(ctx context.Context, id ID, action Action) (err error)

	// TryRunWithLock is like RunWithLock but waits at most timeout for the lock.
	// Return ran=false and a nil error if the lock could not be acquired in time.
	TryRunWithLock(ctx context.Context, id ID, timeout time.Duration, action Action) (ran bool, err error)

	// Compare returns the ordering used by the deadlock prevention
	// (-1 if a < b, 0 if a == b, +1 if a > b).
	Compare(a, b ID) int
}
