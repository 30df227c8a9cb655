package entitylock

import (
	"context"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Reentrant handle (one per entity ID)
// --------------------------------------------------------------------------

// noOwner marks a handle that is not held by any call chain
const noOwner ownerID = 0

// handle is the per-ID lock. It is reentrant for the token that acquired it.
//
// The exclusive slot is a channel with capacity one: a value in the channel
// means the handle is taken. owner and holds are only touched with mu held,
// refs is only touched inside xsync.MapOf.Compute of the registry.
type handle struct {
	slot chan struct{}

	mu    sync.Mutex
	owner ownerID // token of the acquisition holding the slot (noOwner if free)
	holds int     // nested acquisitions of owner (> 0 iff held)

	refs int // in-flight acquisitions and active scopes (PolicyReclaim only)
}

func newHandle() *handle {
	return &handle{
		slot: make(chan struct{}, 1),
	}
}

// reenter increments the nesting count if owner holds the handle. owner must
// be the token of an acquisition that is still active on the caller's chain.
func (h *handle) reenter(owner ownerID) bool {
	if owner == noOwner {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == owner && h.holds > 0 {
		h.holds++
		return true
	}
	return false
}

// lock acquires the free handle for owner, which must be a fresh token.
//
//   - wait < 0: block until acquired or ctx is done
//   - wait == 0: a single non-blocking attempt
//   - wait > 0: block at most wait
//
// Returns whether the handle was acquired. A non-nil error is only returned
// if ctx ended while waiting.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *handle) lock(ctx context.Context, owner ownerID, wait time.Duration) (bool, error) {
	// an already cancelled context never waits
	if err := ctx.Err(); err != nil {
		return false, err
	}

	switch {
	case wait == 0:
		select {
		case h.slot <- struct{}{}:
		default:
			return false, nil
		}
	case wait < 0:
		select {
		case h.slot <- struct{}{}:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	default:
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case h.slot <- struct{}{}:
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	h.mu.Lock()
	h.owner = owner
	h.holds = 1
	h.mu.Unlock()
	return true, nil
}

// unlock releases one nesting level of owner and frees the slot when the
// outermost acquisition is released. Unlocking a handle that is not held by
// owner is a programming error and panics.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *handle) unlock(owner ownerID) {
	h.mu.Lock()
	if h.owner != owner || h.holds == 0 {
		h.mu.Unlock()
		panic("entitylock: unlock of a handle not held by the caller")
	}
	h.holds--
	if h.holds > 0 {
		h.mu.Unlock()
		return
	}
	h.owner = noOwner
	h.mu.Unlock()

	<-h.slot
}

// held reports whether any call chain holds the handle.
func (h *handle) held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.holds > 0
}
