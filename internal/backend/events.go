package backend

import (
	"slices"
	"sync"
)

// AuthEvents is a registry of auth-state listeners for Authenticator
// implementations. The zero value is ready to use.
type AuthEvents struct {
	mu        sync.Mutex
	listeners map[uint64]func(*User)
	nextID    uint64
}

// Subscribe registers fn and returns a func that removes it.
func (e *AuthEvents) Subscribe(fn func(*User)) (unsubscribe func()) {
	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = make(map[uint64]func(*User))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit calls every listener in registration order on the calling
// goroutine. Each listener gets its own copy of u.
func (e *AuthEvents) Emit(u *User) {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(*User), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(u.Clone())
	}
}

// Clone returns a copy of u, or nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
