package entitycache

import (
	"context"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stden/EntityLocker/lib/entitylock"
	"slices"
	"sync/atomic"
	"time"
)

var plog = logger.GetLogger("entitycache")

// Entry is a committed value with the write index it was written at
type Entry[V any] struct {
	Value   V
	Version uint64 // write index of the cache when the value was stored
}

type cacheImpl[ID comparable, V any] struct {
	locker  entitylock.IEntityLocker[ID]
	entries *xsync.MapOf[ID, Entry[V]]
	index   atomic.Uint64
}

// New creates a new, empty entity cache that serializes writes with locker.
// The locker may be shared with other components that lock the same IDs.
func New[ID comparable, V any](locker entitylock.IEntityLocker[ID]) ICache[ID, V] {
	return &cacheImpl[ID, V]{
		locker:  locker,
		entries: xsync.NewMapOf[ID, Entry[V]](),
	}
}

// incAndGetIndex increments the write index and returns the new value.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (c *cacheImpl[ID, V]) incAndGetIndex() uint64 {
	return c.index.Add(1)
}

// store writes a value, the caller must hold the lock of id
func (c *cacheImpl[ID, V]) store(id ID, value V) {
	c.entries.Store(id, Entry[V]{Value: value, Version: c.incAndGetIndex()})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see entitycache/interface.go)
// --------------------------------------------------------------------------

func (c *cacheImpl[ID, V]) Get(id ID) (V, bool) {
	e, ok := c.entries.Load(id)
	return e.Value, ok
}

func (c *cacheImpl[ID, V]) Entry(id ID) (Entry[V], bool) {
	return c.entries.Load(id)
}

func (c *cacheImpl[ID, V]) Put(ctx context.Context, id ID, value V) error {
	return c.locker.RunWithLock(ctx, id, func(context.Context) error {
		c.store(id, value)
		return nil
	})
}

func (c *cacheImpl[ID, V]) Delete(ctx context.Context, id ID) error {
	return c.locker.RunWithLock(ctx, id, func(context.Context) error {
		c.entries.Delete(id)
		return nil
	})
}

func (c *cacheImpl[ID, V]) Update(ctx context.Context, id ID, fn UpdateFunc[V]) error {
	return c.locker.RunWithLock(ctx, id, func(ctx context.Context) error {
		return c.apply(ctx, id, fn)
	})
}

func (c *cacheImpl[ID, V]) TryUpdate(ctx context.Context, id ID, timeout time.Duration, fn UpdateFunc[V]) (bool, error) {
	return c.locker.TryRunWithLock(ctx, id, timeout, func(ctx context.Context) error {
		return c.apply(ctx, id, fn)
	})
}

func (c *cacheImpl[ID, V]) UpdateAll(ctx context.Context, ids []ID, fn UpdateAllFunc[ID, V]) error {
	// ascending, without duplicates: the only order the locker admits
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, c.locker.Compare)
	sorted = slices.Compact(sorted)

	err := c.lockAll(ctx, sorted, func(ctx context.Context) error {
		values := make(map[ID]V, len(sorted))
		for _, id := range sorted {
			if e, ok := c.entries.Load(id); ok {
				values[id] = e.Value
			}
		}

		if err := fn(ctx, values); err != nil {
			return err
		}

		// only locked entities may be written
		for id := range values {
			if _, found := slices.BinarySearchFunc(sorted, id, c.locker.Compare); !found {
				return fmt.Errorf("entitycache: UpdateAll added entity %v which was not locked", id)
			}
		}

		for _, id := range sorted {
			if v, ok := values[id]; ok {
				c.store(id, v)
			} else {
				c.entries.Delete(id)
			}
		}
		return nil
	})
	if err != nil {
		plog.Debugf("update of %v failed: %v", sorted, err)
	}
	return err
}

func (c *cacheImpl[ID, V]) Len() int {
	return c.entries.Size()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// apply runs fn on the current value of id, the caller must hold the lock of id
func (c *cacheImpl[ID, V]) apply(ctx context.Context, id ID, fn UpdateFunc[V]) error {
	old, loaded := c.entries.Load(id)
	value, del, err := fn(ctx, old.Value, loaded)
	if err != nil {
		return err
	}
	if del {
		c.entries.Delete(id)
		return nil
	}
	c.store(id, value)
	return nil
}

// lockAll nests the locks of ids (which must be sorted ascending) and runs fn
// with all of them held.
func (c *cacheImpl[ID, V]) lockAll(ctx context.Context, ids []ID, fn func(ctx context.Context) error) error {
	if len(ids) == 0 {
		return fn(ctx)
	}
	return c.locker.RunWithLock(ctx, ids[0], func(ctx context.Context) error {
		return c.lockAll(ctx, ids[1:], fn)
	})
}
