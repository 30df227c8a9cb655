package entitylock

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Lock registry (ID -> handle)
// --------------------------------------------------------------------------

// registry maps entity IDs to their handles.
//
// With PolicyReclaim every acquire must be paired with exactly one release.
// Both run inside MapOf.Compute, which holds the bucket lock of the key, so
// taking a reference, dropping it and removing the entry are atomic with
// respect to each other.
type registry[ID comparable] struct {
	policy  Policy
	handles *xsync.MapOf[ID, *handle]
}

func newRegistry[ID comparable](policy Policy) *registry[ID] {
	return &registry[ID]{
		policy:  policy,
		handles: xsync.NewMapOf[ID, *handle](),
	}
}

// acquire returns the single handle for id, creating it if absent.
// Concurrent first-time calls for the same id observe the same handle.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *registry[ID]) acquire(id ID) *handle {
	if r.policy == PolicyRetain {
		h, _ := r.handles.LoadOrCompute(id, newHandle)
		return h
	}

	h, _ := r.handles.Compute(id, func(old *handle, loaded bool) (*handle, bool) {
		if !loaded {
			old = newHandle()
		}
		old.refs++
		return old, false
	})
	return h
}

// release gives back the reference taken by acquire. It must be called after
// the handle was unlocked (or was never locked). The entry is removed only if
// no other reference exists and the handle is not held. Returns whether the
// entry was removed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *registry[ID]) release(id ID, h *handle) (reclaimed bool) {
	if r.policy == PolicyRetain {
		return false
	}

	r.handles.Compute(id, func(cur *handle, loaded bool) (*handle, bool) {
		if !loaded {
			// nothing registered, deleting a missing key is a no-op
			return cur, true
		}
		if cur != h {
			return cur, false
		}
		cur.refs--
		if cur.refs == 0 && !cur.held() {
			reclaimed = true
			return cur, true
		}
		return cur, false
	})
	return reclaimed
}

// len returns the number of registered handles
func (r *registry[ID]) len() int {
	return r.handles.Size()
}
