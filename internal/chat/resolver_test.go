package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/backend/memory"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// countingStore wraps a DocumentStore and counts lookups and creations.
type countingStore struct {
	backend.DocumentStore

	queries  atomic.Int32
	creates  atomic.Int32
	delay    time.Duration
	stale    bool
	queryErr error
}

func (s *countingStore) Query(ctx context.Context, q backend.Query) ([]*backend.Document, error) {
	s.queries.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.stale {
		return nil, nil
	}
	return s.DocumentStore.Query(ctx, q)
}

func (s *countingStore) Create(ctx context.Context, path string, data map[string]any) error {
	s.creates.Add(1)
	return s.DocumentStore.Create(ctx, path, data)
}

func newResolver(store backend.DocumentStore) *Resolver {
	return NewResolver(store, logging.Discard())
}

func TestKey_IsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"zed", "alice"},
		{"same", "same"},
		{"", "x"},
		{"a_b", "c"},
	}
	for _, p := range pairs {
		assert.Equal(t, Key(p[0], p[1]), Key(p[1], p[0]), p)
	}
	assert.Equal(t, "u1_u2", Key("u2", "u1"))
}

func TestResolve_RoundTripIssuesNoSecondCreate(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{DocumentStore: memory.NewDocumentStore()}
	r := newResolver(store)

	first, err := r.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.creates.Load())
	assert.Equal(t, int32(1), store.queries.Load())
	assert.Equal(t, "u1_u2", first.ID)
	assert.Equal(t, [2]string{"u1", "u2"}, first.Participants)
}

func TestResolve_ReversedPairHitsSameHandle(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{DocumentStore: memory.NewDocumentStore()}
	r := newResolver(store)

	a, err := r.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "u2", "u1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), store.queries.Load())
}

func TestResolve_AdoptsExistingConversation(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewDocumentStore()
	id, err := mem.Add(ctx, privateCollection, map[string]any{
		"users": map[string]any{"u1": true, "u2": true},
	})
	require.NoError(t, err)

	store := &countingStore{DocumentStore: mem}
	conv, err := newResolver(store).Resolve(ctx, "u2", "u1")
	require.NoError(t, err)

	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "u1_u2", conv.Key)
	assert.Zero(t, store.creates.Load())
}

func TestResolve_FallsBackToExistingOnCreateConflict(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewDocumentStore()

	// another process already created the conversation
	other := newResolver(mem)
	existing, err := other.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)

	store := &countingStore{DocumentStore: mem, stale: true}
	conv, err := newResolver(store).Resolve(ctx, "u1", "u2")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, conv.ID)
	assert.Equal(t, int32(1), store.creates.Load())

	docs, err := mem.Query(ctx, backend.Query{Collection: privateCollection})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestResolve_ConcurrentCallersShareOneResolution(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewDocumentStore()
	store := &countingStore{DocumentStore: mem, delay: 20 * time.Millisecond}
	r := newResolver(store)

	const n = 20
	results := make([]Conversation, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				results[i], errs[i] = r.Resolve(ctx, "u1", "u2")
			} else {
				results[i], errs[i] = r.Resolve(ctx, "u2", "u1")
			}
		}()
	}
	close(start)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), store.creates.Load())

	docs, err := mem.Query(ctx, backend.Query{Collection: privateCollection})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestResolve_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("network down")
	store := &countingStore{DocumentStore: memory.NewDocumentStore(), queryErr: boom}
	r := newResolver(store)

	_, err := r.Resolve(ctx, "u1", "u2")
	require.ErrorIs(t, err, boom)

	store.queryErr = nil
	conv, err := r.Resolve(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", conv.ID)
	assert.Equal(t, int32(2), store.queries.Load())
}

func TestResolve_RequiresBothParticipants(t *testing.T) {
	_, err := newResolver(memory.NewDocumentStore()).Resolve(context.Background(), "u1", "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestDocumentID_DistinctPairsNeverCollide(t *testing.T) {
	assert.Equal(t, Key("a_b", "c"), Key("a", "b_c"))
	assert.NotEqual(t, documentID("a_b", "c"), documentID("a", "b_c"))
	assert.NotEqual(t, documentID("a%5F", "b"), documentID("a_", "b"))
	assert.Equal(t, documentID("c", "a_b"), documentID("a_b", "c"))
	assert.Equal(t, "u1_u2", documentID("u2", "u1"))
}

func TestPrivateChat_PairsSharingAKeyStayIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	log := logging.Discard()

	sender := NewPrivateChat(NewResolver(store, log), store, log)
	_, err := sender.Send(ctx, "a_b", "c", "secret for c")
	require.NoError(t, err)

	// a separate process resolving an unrelated pair with the same key
	reader := NewPrivateChat(NewResolver(store, log), store, log)
	sink := &messageSink{}
	cancel, err := reader.Subscribe(ctx, "a", "b_c", sink.fn)
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, 1, sink.count())
	assert.Empty(t, sink.last())
}

func TestResolve_ForeignDocumentAtSlotIsNotAdopted(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewDocumentStore()
	require.NoError(t, mem.Create(ctx, backend.Join(privateCollection, "u1_u2"), map[string]any{
		"users": map[string]any{"x": true, "y": true},
	}))

	store := &countingStore{DocumentStore: mem, stale: true}
	conv, err := newResolver(store).Resolve(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.NotEqual(t, "u1_u2", conv.ID)
	assert.Equal(t, "u1_u2", conv.Key)

	doc, err := mem.Get(ctx, backend.Join(privateCollection, conv.ID))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"u1": true, "u2": true}, doc.Data["users"])
}

func TestResolve_CanceledCallerDoesNotFailSharedFlight(t *testing.T) {
	store := &countingStore{DocumentStore: memory.NewDocumentStore(), delay: 50 * time.Millisecond}
	r := newResolver(store)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "u1", "u2")
		firstErr <- err
	}()

	time.Sleep(5 * time.Millisecond)
	secondDone := make(chan struct{})
	var (
		conv Conversation
		err  error
	)
	go func() {
		defer close(secondDone)
		conv, err = r.Resolve(context.Background(), "u2", "u1")
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-firstErr, context.Canceled)
	<-secondDone
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", conv.ID)
	assert.Equal(t, int32(1), store.queries.Load())
}
