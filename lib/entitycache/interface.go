package entitycache

import (
	"context"
	"time"
)

// UpdateFunc computes the new value of an entity from the current one. loaded
// reports whether the entity existed. Returning del=true removes the entity.
type UpdateFunc[V any] func(ctx context.Context, old V, loaded bool) (value V, del bool, err error)

// UpdateAllFunc modifies a snapshot of several entities. Entities missing from
// the cache are missing from the map, entities removed from the map are
// deleted from the cache.
type UpdateAllFunc[ID comparable, V any] func(ctx context.Context, values map[ID]V) error

// ICache is the interface of an entity cache with per-entity locking.
type ICache[ID comparable, V any] interface {
	// Get returns the last committed value of an entity without locking.
	Get(id ID) (value V, loaded bool)
	// Entry returns the last committed value together with its write index.
	Entry(id ID) (entry Entry[V], loaded bool)
	// Put stores a value under the lock of the entity.
	Put(ctx context.Context, id ID, value V) (err error)
	// Delete removes an entity under its lock.
	Delete(ctx context.Context, id ID) (err error)
	// Update runs a read-modify-write under the lock of the entity.
	Update(ctx context.Context, id ID, fn UpdateFunc[V]) (err error)
	// TryUpdate is like Update but waits at most timeout for the lock.
	// Return updated=false and a nil error if the lock was not acquired in time.
	TryUpdate(ctx context.Context, id ID, timeout time.Duration, fn UpdateFunc[V]) (updated bool, err error)
	// UpdateAll locks all ids in ascending order and applies fn to a snapshot of their values.
	UpdateAll(ctx context.Context, ids []ID, fn UpdateAllFunc[ID, V]) (err error)
	// Len returns the number of cached entities.
	Len() int
}
