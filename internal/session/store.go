package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Persister stores the serialized identity between runs. Load returns
// (nil, nil) when nothing is stored.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

type observer struct {
	id uint64
	fn func(Snapshot)
}

// Store is the session cache together with its observer registry.
// Methods never fail: persistence problems are logged and the in-memory
// state stays authoritative. Observers run synchronously on the updating
// goroutine, in registration order, outside the internal lock.
type Store struct {
	mu        sync.Mutex
	cur       Snapshot
	observers []observer
	nextID    uint64

	persister Persister
	logger    logging.Logger
}

func New(persister Persister, logger logging.Logger) *Store {
	return &Store{
		cur:       Snapshot{State: StateUnauthenticated},
		persister: persister,
		logger:    logger,
	}
}

// Load rehydrates the identity from local storage. A missing or unreadable
// snapshot leaves the store signed out.
func (s *Store) Load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	data, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to load cached identity", "error", err)
		return
	}
	if data == nil {
		return
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		s.logger.Warn(ctx, "discarding unreadable cached identity", "error", err)
		return
	}
	if id.IsZero() {
		return
	}

	s.mu.Lock()
	s.cur.Identity = id
	s.cur.State = StatePartiallyLoaded
	if id.FullyLoaded {
		s.cur.State = StateFullyLoaded
	}
	s.cur.Rehydrated = true
	s.cur.Version++
	snap, fns := s.cur, s.observerFuncs()
	s.mu.Unlock()

	s.logger.Debug(ctx, "identity rehydrated", "user_id", id.ID)
	notify(fns, snap)
}

// Subscribe registers fn and calls it once, synchronously, with the current
// snapshot. The returned cancel removes exactly this registration and may be
// called any number of times.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	snap := s.cur
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.observers = slices.DeleteFunc(s.observers, func(o observer) bool { return o.id == id })
			s.mu.Unlock()
		})
	}
}

// Update merges p into the current identity, persists the result and
// notifies every observer.
func (s *Store) Update(ctx context.Context, p Patch) {
	s.UpdateIf(ctx, nil, p)
}

// UpdateIf applies p only when cond accepts the current snapshot. A nil
// cond always accepts. It reports whether the patch was applied.
func (s *Store) UpdateIf(ctx context.Context, cond func(Snapshot) bool, p Patch) bool {
	s.mu.Lock()
	if cond != nil && !cond(s.cur) {
		s.mu.Unlock()
		return false
	}

	p.apply(&s.cur)
	if s.cur.IsZero() && s.cur.State != StateAuthenticating {
		s.cur.State = StateUnauthenticated
	}
	s.cur.Rehydrated = false
	s.cur.Version++
	s.persist(ctx, s.cur.Identity)
	snap, fns := s.cur, s.observerFuncs()
	s.mu.Unlock()

	notify(fns, snap)
	return true
}

// Reset signs the session out and clears local storage.
func (s *Store) Reset(ctx context.Context) {
	s.Update(ctx, signedOut())
}

func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Store) IsLoggedIn() bool {
	return s.Current().ID != ""
}

// persist writes id to local storage, or clears it for the sentinel.
// Caller holds s.mu so writes land in update order.
func (s *Store) persist(ctx context.Context, id Identity) {
	if s.persister == nil {
		return
	}

	if id.IsZero() {
		if err := s.persister.Clear(ctx); err != nil {
			s.logger.Error(ctx, "failed to clear cached identity", "error", err)
		}
		return
	}

	data, err := json.Marshal(id)
	if err != nil {
		s.logger.Error(ctx, "failed to encode identity", "error", err)
		return
	}
	if err := s.persister.Save(ctx, data); err != nil {
		s.logger.Error(ctx, "failed to save cached identity", "error", err, "user_id", id.ID)
	}
}

// observerFuncs copies the registry. Caller holds s.mu.
func (s *Store) observerFuncs() []func(Snapshot) {
	fns := make([]func(Snapshot), len(s.observers))
	for i, o := range s.observers {
		fns[i] = o.fn
	}
	return fns
}

func notify(fns []func(Snapshot), snap Snapshot) {
	for _, fn := range fns {
		fn(snap)
	}
}
