package memory

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetUpdate(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"email": "a@x.com"}))
	require.NoError(t, s.Update(ctx, "users/u1", map[string]any{"bio": "hi"}))

	d, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", d.ID)
	assert.Equal(t, "a@x.com", d.String("email"))
	assert.Equal(t, "hi", d.String("bio"))
}

func TestGet_NotFound(t *testing.T) {
	s := NewDocumentStore()
	_, err := s.Get(context.Background(), "users/nobody")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGet_BadPath(t *testing.T) {
	s := NewDocumentStore()
	_, err := s.Get(context.Background(), "users")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestUpdate_MissingDocument(t *testing.T) {
	s := NewDocumentStore()
	err := s.Update(context.Background(), "users/u1", map[string]any{"bio": "x"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreate_FailsWhenExists(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "private-chats/a_b", map[string]any{"n": 1}))
	require.ErrorIs(t, s.Create(ctx, "private-chats/a_b", map[string]any{"n": 2}), common.ErrAlreadyExists)

	d, err := s.Get(ctx, "private-chats/a_b")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Data["n"])
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "c/d", map[string]any{"users": map[string]any{"a": true}}))

	d, err := s.Get(ctx, "c/d")
	require.NoError(t, err)
	d.Data["users"].(map[string]any)["b"] = true

	again, err := s.Get(ctx, "c/d")
	require.NoError(t, err)
	assert.Len(t, again.Data["users"], 1)
}

func TestAdd_ResolvesServerTimestamps(t *testing.T) {
	s := NewDocumentStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	id1, err := s.Add(ctx, "public-chat", map[string]any{"created_at": backend.ServerTimestamp})
	require.NoError(t, err)
	id2, err := s.Add(ctx, "public-chat", map[string]any{"created_at": backend.ServerTimestamp})
	require.NoError(t, err)

	d1, _ := s.Get(ctx, "public-chat/"+id1)
	d2, _ := s.Get(ctx, "public-chat/"+id2)
	assert.Equal(t, fixed, d1.Time("created_at"))
	assert.True(t, d2.Time("created_at").After(d1.Time("created_at")), "clock must be strictly increasing")
}

func TestQuery_MapEqualityFilter(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "private-chats/c1", map[string]any{"users": map[string]any{"a": true, "b": true}}))
	require.NoError(t, s.Set(ctx, "private-chats/c2", map[string]any{"users": map[string]any{"a": true, "c": true}}))

	docs, err := s.Query(ctx, backend.Query{
		Collection: "private-chats",
		Filters:    []backend.Filter{{Field: "users", Value: map[string]any{"b": true, "a": true}}},
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0].ID)
}

func TestQuery_IgnoresSubcollections(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "private-chats/c1", map[string]any{}))
	require.NoError(t, s.Set(ctx, "private-chats/c1/messages/m1", map[string]any{}))

	docs, err := s.Query(ctx, backend.Query{Collection: "private-chats"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	msgs, err := s.Query(ctx, backend.Query{Collection: "private-chats/c1/messages"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestQuery_OrderLimitStartAfter(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, "posts/p"+string(rune('0'+i)), map[string]any{
			"created_at": base.Add(time.Duration(i) * time.Minute),
		}))
	}

	q := backend.Query{
		Collection: "posts",
		OrderBy:    []backend.Order{{Field: "created_at", Direction: backend.Desc}},
		Limit:      2,
	}

	page1, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []string{"p4", "p3"}, ids(page1))

	q.StartAfter = []any{page1[len(page1)-1].Time("created_at")}
	page2, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []string{"p2", "p1"}, ids(page2))

	q.StartAfter = []any{base}
	page3, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Empty(t, page3)
}

func TestSubscribe_InitialAndOnChange(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	var mu sync.Mutex
	var got [][]string

	cancel, err := s.Subscribe(ctx, backend.Query{
		Collection: "public-chat",
		OrderBy:    []backend.Order{{Field: "created_at"}},
	}, func(docs []*backend.Document) {
		mu.Lock()
		defer mu.Unlock()
		texts := make([]string, 0, len(docs))
		for _, d := range docs {
			texts = append(texts, d.String("text"))
		}
		got = append(got, texts)
	})
	require.NoError(t, err)

	_, err = s.Add(ctx, "public-chat", map[string]any{"text": "one", "created_at": backend.ServerTimestamp})
	require.NoError(t, err)
	_, err = s.Add(ctx, "other", map[string]any{"text": "ignored"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "public-chat", map[string]any{"text": "two", "created_at": backend.ServerTimestamp})
	require.NoError(t, err)

	cancel()
	cancel()

	_, err = s.Add(ctx, "public-chat", map[string]any{"text": "three", "created_at": backend.ServerTimestamp})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]string{{}, {"one"}, {"one", "two"}}, got)
}

func TestSubscribe_StopsWhenContextEnds(t *testing.T) {
	s := NewDocumentStore()
	ctx, cancelCtx := context.WithCancel(context.Background())

	calls := make(chan struct{}, 10)
	_, err := s.Subscribe(ctx, backend.Query{Collection: "c"}, func([]*backend.Document) {
		calls <- struct{}{}
	})
	require.NoError(t, err)
	<-calls

	cancelCtx()
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.subs) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribe_CancelReleasesContextWatcher(t *testing.T) {
	s := NewDocumentStore()
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	before := runtime.NumGoroutine()
	for range 100 {
		cancel, err := s.Subscribe(ctx, backend.Query{Collection: "c"}, func([]*backend.Document) {})
		require.NoError(t, err)
		cancel()
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.subs)
}

func TestSubscribe_ConcurrentWritersEndOnLatestResult(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	var (
		mu     sync.Mutex
		active bool
		lens   []int
	)
	cancel, err := s.Subscribe(ctx, backend.Query{Collection: "c"}, func(docs []*backend.Document) {
		mu.Lock()
		assert.False(t, active, "deliveries overlap")
		active = true
		lens = append(lens, len(docs))
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active = false
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, fmt.Sprintf("c/d%d", i), map[string]any{"n": i}))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lens)
	assert.Equal(t, writers, lens[len(lens)-1])
	for i := 1; i < len(lens); i++ {
		assert.Greater(t, lens[i], lens[i-1])
	}
}

func TestSubscription_DropsOutOfOrderResults(t *testing.T) {
	var got []string
	sub := &subscription{fn: func(docs []*backend.Document) {
		got = append(got, ids(docs)...)
	}}

	sub.deliver(2, []*backend.Document{{ID: "new"}})
	sub.deliver(1, []*backend.Document{{ID: "old"}})
	sub.deliver(2, []*backend.Document{{ID: "dup"}})
	sub.deliver(3, []*backend.Document{{ID: "newer"}})

	assert.Equal(t, []string{"new", "newer"}, got)
}

func TestDelete_NotifiesAndIsIdempotent(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "posts/p1", map[string]any{}))

	var lens []int
	cancel, err := s.Subscribe(ctx, backend.Query{Collection: "posts"}, func(docs []*backend.Document) {
		lens = append(lens, len(docs))
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Delete(ctx, "posts/p1"))
	require.NoError(t, s.Delete(ctx, "posts/p1"))
	require.Equal(t, []int{1, 0}, lens)
}

func ids(docs []*backend.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
