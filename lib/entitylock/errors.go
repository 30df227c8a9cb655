package entitylock

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeadlockPrevented is matched by every *DeadlockError.
	ErrDeadlockPrevented = errors.New("entitylock: deadlock prevented")

	// ErrInterruptedWait is returned when the context of a caller ends while
	// it waits for an entity lock.
	ErrInterruptedWait = errors.New("entitylock: interrupted while waiting for lock")
)

// DeadlockError is returned when a call chain that holds Held requests a
// strictly lower ID. No lock was attempted.
type DeadlockError[ID any] struct {
	Held      ID // highest ID held by the call chain
	Requested ID // ID that was rejected
}

// Error implements the error interface.
func (e *DeadlockError[ID]) Error() string {
	return fmt.Sprintf("entitylock: deadlock prevented: %v > %v", e.Held, e.Requested)
}

// Is reports whether target is ErrDeadlockPrevented.
func (e *DeadlockError[ID]) Is(target error) bool {
	return target == ErrDeadlockPrevented
}

// interrupted wraps the context error so that both ErrInterruptedWait and the
// context error (context.Canceled or context.DeadlineExceeded) match.
func interrupted(ctx context.Context, id any) error {
	return fmt.Errorf("%w (id %v): %w", ErrInterruptedWait, id, ctx.Err())
}
