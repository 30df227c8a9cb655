package entitylock

import (
	"sync/atomic"
)

// ownerID identifies one non-reentrant acquisition of a handle. Zero is
// reserved for "no owner".
type ownerID uint64

// lastOwnerID is shared by all lockers so that owner tokens never collide,
// even when a context travels between lockers.
var lastOwnerID atomic.Uint64

// generateOwnerID returns a new unique owner ID
func generateOwnerID() ownerID {
	return ownerID(lastOwnerID.Add(1))
}
