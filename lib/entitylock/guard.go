package entitylock

import (
	"context"
)

// --------------------------------------------------------------------------
// Ordering guard (deadlock prevention)
// --------------------------------------------------------------------------

// scope is one acquisition of a call chain inside a protected action. Scopes
// form an immutable list from the innermost acquisition to the outermost
// one: entering a nested acquisition stores a new head in a child context, so
// leaving the action restores the previous scope by construction.
type scope[ID comparable] struct {
	id     ID
	owner  ownerID // token the handle of id was acquired with
	maxID  ID      // highest ID held by this call chain
	parent *scope[ID]
}

// ownerOf returns the token the chain holds id with, if the chain holds it
func (s *scope[ID]) ownerOf(id ID) (ownerID, bool) {
	for ; s != nil; s = s.parent {
		if s.id == id {
			return s.owner, true
		}
	}
	return noOwner, false
}

// scopeKey is the context key of a locker's scope. Every locker uses its own
// key so that call chains of different lockers never share ordering state.
type scopeKey struct {
	locker any
}

func (l *EntityLocker[ID]) scopeFrom(ctx context.Context) *scope[ID] {
	s, _ := ctx.Value(scopeKey{locker: l}).(*scope[ID])
	return s
}

func (l *EntityLocker[ID]) withScope(ctx context.Context, s *scope[ID]) context.Context {
	return context.WithValue(ctx, scopeKey{locker: l}, s)
}

// admit checks a new acquisition of id against the scope of the call chain.
// It returns a *DeadlockError if id is lower than the highest ID the chain
// holds. Otherwise it returns the token the chain already holds id with, or
// noOwner if the chain does not hold id.
func (l *EntityLocker[ID]) admit(ctx context.Context, id ID) (*scope[ID], ownerID, error) {
	prev := l.scopeFrom(ctx)
	if prev == nil {
		return nil, noOwner, nil
	}
	if l.compare(id, prev.maxID) < 0 {
		return prev, noOwner, &DeadlockError[ID]{Held: prev.maxID, Requested: id}
	}
	owner, _ := prev.ownerOf(id)
	return prev, owner, nil
}

// MaxHeld returns the highest ID held by the call chain of ctx, if any.
func (l *EntityLocker[ID]) MaxHeld(ctx context.Context) (ID, bool) {
	if s := l.scopeFrom(ctx); s != nil {
		return s.maxID, true
	}
	var zero ID
	return zero, false
}
