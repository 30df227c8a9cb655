package entitylock

import (
	"cmp"
	"context"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var plog = logger.GetLogger("entitylock")

// waitForever is the wait argument of handle.lock used by RunWithLock
const waitForever time.Duration = -1

// EntityLocker serializes actions per entity ID. The zero value is not
// usable, create instances with New or NewWithCompare.
type EntityLocker[ID comparable] struct {
	name     string
	compare  func(a, b ID) int
	registry *registry[ID]
	metrics  *lockerMetrics
}

var _ IEntityLocker[int] = (*EntityLocker[int])(nil)

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// New creates an EntityLocker for IDs with a natural order (integers,
// floats, strings). The options are optional (nil = DefaultOptions()).
func New[ID cmp.Ordered](opts *Options) *EntityLocker[ID] {
	return NewWithCompare[ID](cmp.Compare[ID], opts)
}

// NewWithCompare creates an EntityLocker for any comparable ID type. compare
// must define a total order consistent with ==, i.e. compare(a, b) == 0 iff
// a == b.
func NewWithCompare[ID comparable](compare func(a, b ID) int, opts *Options) *EntityLocker[ID] {
	if compare == nil {
		panic("entitylock: compare function must not be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	name := opts.Name
	if name == "" {
		name = "default"
	}

	l := &EntityLocker[ID]{
		name:    name,
		compare: compare,
	}
	l.registry = newRegistry[ID](opts.Policy)
	l.metrics = newLockerMetrics(name, func() float64 {
		return float64(l.registry.len())
	})
	return l
}

// --------------------------------------------------------------------------
// Interface Methods (docu see entitylock/interface.go)
// --------------------------------------------------------------------------

func (l *EntityLocker[ID]) RunWithLock(ctx context.Context, id ID, action Action) error {
	_, err := l.run(ctx, id, waitForever, action)
	return err
}

func (l *EntityLocker[ID]) TryRunWithLock(ctx context.Context, id ID, timeout time.Duration, action Action) (bool, error) {
	if timeout < 0 {
		timeout = 0
	}
	return l.run(ctx, id, timeout, action)
}

func (l *EntityLocker[ID]) Compare(a, b ID) int {
	return l.compare(a, b)
}

// Name returns the name of the locker (metrics label)
func (l *EntityLocker[ID]) Name() string {
	return l.name
}

// Handles returns the number of handles currently in the registry
func (l *EntityLocker[ID]) Handles() int {
	return l.registry.len()
}

// --------------------------------------------------------------------------
// Acquisition
// --------------------------------------------------------------------------

// run is the shared implementation of RunWithLock and TryRunWithLock.
// The returned bool reports whether the action ran.
//
// Every path that obtained a registry reference gives it back, and the lock
// is released before the action's error (or panic) reaches the caller.
func (l *EntityLocker[ID]) run(ctx context.Context, id ID, wait time.Duration, action Action) (bool, error) {
	prev, owner, err := l.admit(ctx, id)
	if err != nil {
		l.metrics.deadlocksPrevented.Inc()
		plog.Debugf("%s: %v", l.name, err)
		return false, err
	}

	h := l.registry.acquire(id)

	// only the token the chain acquired id with may reenter, every other
	// acquisition (sibling goroutines sharing ctx included) competes for
	// the handle with a fresh token
	if h.reenter(owner) {
		l.metrics.reentered.Inc()
	} else {
		owner = generateOwnerID()
		start := time.Now()
		acquired, err := h.lock(ctx, owner, wait)
		if err != nil {
			l.release(id, h)
			l.metrics.interrupted.Inc()
			return false, interrupted(ctx, id)
		}
		if !acquired {
			l.release(id, h)
			l.metrics.timeouts.Inc()
			return false, nil
		}
		l.metrics.acquired.Inc()
		l.metrics.observeWait(start)
	}

	defer func() {
		h.unlock(owner)
		l.release(id, h)
	}()

	return true, action(l.withScope(ctx, &scope[ID]{id: id, owner: owner, maxID: id, parent: prev}))
}

// release gives back the registry reference of h and records a reclamation
func (l *EntityLocker[ID]) release(id ID, h *handle) {
	if l.registry.release(id, h) {
		l.metrics.reclaimed.Inc()
		plog.Debugf("%s: reclaimed handle of %v", l.name, id)
	}
}
