// Package memory provides in-process implementations of the backend ports.
// They are NOT persistent and are meant for local mode and tests.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/google/uuid"
)

type subscription struct {
	q  backend.Query
	fn func([]*backend.Document)

	mu         sync.Mutex
	seen       bool
	delivered  uint64
	pending    []*backend.Document
	pendingVer uint64
	hasPending bool
	draining   bool
}

// deliver hands docs, computed at store version ver, to fn. Calls for one
// subscription never overlap and never go back in version: a result older
// than one already queued or delivered is dropped, and a caller that finds
// another goroutine delivering leaves its result to that goroutine.
func (sub *subscription) deliver(ver uint64, docs []*backend.Document) {
	sub.mu.Lock()
	if (sub.seen && ver <= sub.delivered) || (sub.hasPending && ver <= sub.pendingVer) {
		sub.mu.Unlock()
		return
	}
	sub.pending, sub.pendingVer, sub.hasPending = docs, ver, true
	if sub.draining {
		sub.mu.Unlock()
		return
	}

	sub.draining = true
	for sub.hasPending {
		next := sub.pending
		sub.delivered, sub.seen = sub.pendingVer, true
		sub.pending, sub.hasPending = nil, false

		sub.mu.Unlock()
		sub.fn(next)
		sub.mu.Lock()
	}
	sub.draining = false
	sub.mu.Unlock()
}

// DocumentStore is an in-memory backend.DocumentStore with realtime
// subscriptions. Listeners run on a writer's goroutine after the store lock
// has been released, one call at a time per subscription and in write order.
type DocumentStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]any
	subs    map[uint64]*subscription
	nextID  uint64
	version uint64
	last   time.Time
	now    func() time.Time
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]map[string]any),
		subs: make(map[uint64]*subscription),
		now:  time.Now,
	}
}

func (s *DocumentStore) Get(ctx context.Context, path string) (*backend.Document, error) {
	if _, _, ok := backend.SplitPath(path); !ok {
		return nil, fmt.Errorf("%w: bad document path %q", common.ErrInvalidRequest, path)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[path]
	if !ok {
		return nil, common.ErrNotFound
	}
	return toDocument(path, data), nil
}

func (s *DocumentStore) Set(ctx context.Context, path string, data map[string]any) error {
	return s.write(path, func(existing map[string]any, found bool) (map[string]any, error) {
		return data, nil
	})
}

func (s *DocumentStore) Create(ctx context.Context, path string, data map[string]any) error {
	return s.write(path, func(existing map[string]any, found bool) (map[string]any, error) {
		if found {
			return nil, common.ErrAlreadyExists
		}
		return data, nil
	})
}

func (s *DocumentStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.write(path, func(existing map[string]any, found bool) (map[string]any, error) {
		if !found {
			return nil, common.ErrNotFound
		}
		merged := copyMap(existing)
		for k, v := range fields {
			merged[k] = v
		}
		return merged, nil
	})
}

func (s *DocumentStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, backend.Join(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	collection, _, ok := backend.SplitPath(path)
	if !ok {
		return fmt.Errorf("%w: bad document path %q", common.ErrInvalidRequest, path)
	}

	s.mu.Lock()
	_, found := s.docs[path]
	if found {
		delete(s.docs, path)
		s.version++
	}
	s.mu.Unlock()

	if found {
		s.notify(collection)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q backend.Query) ([]*backend.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runQuery(q), nil
}

// Subscribe delivers the current result synchronously, then again after every
// write to q.Collection.
func (s *DocumentStore) Subscribe(ctx context.Context, q backend.Query, fn func([]*backend.Document)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	sub := &subscription{q: q, fn: fn}
	s.subs[id] = sub
	initial, ver := s.runQuery(q), s.version
	s.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(stop)
		})
	}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}

	sub.deliver(ver, initial)
	return cancel, nil
}

func (s *DocumentStore) write(path string, mutate func(existing map[string]any, found bool) (map[string]any, error)) error {
	collection, _, ok := backend.SplitPath(path)
	if !ok {
		return fmt.Errorf("%w: bad document path %q", common.ErrInvalidRequest, path)
	}

	s.mu.Lock()
	existing, found := s.docs[path]
	next, err := mutate(existing, found)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = s.resolveTimestamps(next)
	s.version++
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// resolveTimestamps copies data, replacing ServerTimestamp sentinels with a
// strictly increasing clock reading. Caller holds s.mu.
func (s *DocumentStore) resolveTimestamps(data map[string]any) map[string]any {
	out := copyMap(data)
	for k, v := range out {
		if backend.IsServerTimestamp(v) {
			now := s.now()
			if !now.After(s.last) {
				now = s.last.Add(time.Nanosecond)
			}
			s.last = now
			out[k] = now
		}
	}
	return out
}

func (s *DocumentStore) notify(collection string) {
	type delivery struct {
		sub  *subscription
		docs []*backend.Document
	}

	s.mu.RLock()
	ver := s.version
	ids := make([]uint64, 0, len(s.subs))
	for id, sub := range s.subs {
		if sub.q.Collection == collection {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	deliveries := make([]delivery, 0, len(ids))
	for _, id := range ids {
		sub := s.subs[id]
		deliveries = append(deliveries, delivery{sub: sub, docs: s.runQuery(sub.q)})
	}
	s.mu.RUnlock()

	for _, d := range deliveries {
		d.sub.deliver(ver, d.docs)
	}
}

// runQuery evaluates q against the current data. Caller holds s.mu.
func (s *DocumentStore) runQuery(q backend.Query) []*backend.Document {
	prefix := strings.Trim(q.Collection, "/") + "/"

	var out []*backend.Document
	for path, data := range s.docs {
		if !strings.HasPrefix(path, prefix) || strings.Contains(path[len(prefix):], "/") {
			continue
		}
		if !matches(data, q.Filters) {
			continue
		}
		out = append(out, toDocument(path, data))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := compareOrder(out[i], out[j], q.OrderBy); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	if len(q.StartAfter) > 0 && len(q.OrderBy) > 0 {
		start := len(out)
		for i, d := range out {
			if compareCursor(d, q.OrderBy, q.StartAfter) > 0 {
				start = i
				break
			}
		}
		out = out[start:]
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(data map[string]any, filters []backend.Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func compareOrder(a, b *backend.Document, orders []backend.Order) int {
	for _, o := range orders {
		c := compareValues(a.Data[o.Field], b.Data[o.Field])
		if o.Direction == backend.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareCursor(d *backend.Document, orders []backend.Order, cursor []any) int {
	for i, o := range orders {
		if i >= len(cursor) {
			break
		}
		c := compareValues(d.Data[o.Field], cursor[i])
		if o.Direction == backend.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// compareValues orders the value kinds documents hold. Missing values sort first.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 1
		}
		return av.Compare(bv)
	case string:
		bv, ok := b.(string)
		if !ok {
			return 1
		}
		return strings.Compare(av, bv)
	case int:
		bv, ok := b.(int)
		if !ok {
			return 1
		}
		return av - bv
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	if b == nil {
		return 1
	}
	return 0
}

func toDocument(path string, data map[string]any) *backend.Document {
	_, id, _ := backend.SplitPath(path)
	return &backend.Document{ID: id, Path: path, Data: copyMap(data)}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			v = copyMap(m)
		}
		out[k] = v
	}
	return out
}
