package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Key returns the order-independent key of the pair (a, b).
func Key(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

var idEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// documentID is the pair's conversation document ID. It equals Key for IDs
// without '_' or '%'; otherwise those are escaped so distinct pairs never
// share a document.
func documentID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return idEscaper.Replace(a) + "_" + idEscaper.Replace(b)
}

// Conversation is a handle to a private conversation document.
type Conversation struct {
	ID           string
	Key          string
	Participants [2]string
}

// MessagesPath is the collection holding the conversation's messages.
func (c Conversation) MessagesPath() string {
	return backend.Join(privateCollection, c.ID, messagesSub)
}

type Resolver struct {
	store  backend.DocumentStore
	logger logging.Logger

	mu    sync.Mutex
	cache map[string]Conversation
	group singleflight.Group
}

func NewResolver(store backend.DocumentStore, logger logging.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		cache:  make(map[string]Conversation),
	}
}

// Resolve returns the conversation between a and b, finding or creating it
// on the first call for the pair.
func (r *Resolver) Resolve(ctx context.Context, a, b string) (Conversation, error) {
	if a == "" || b == "" {
		return Conversation{}, fmt.Errorf("%w: both participants are required", common.ErrInvalidRequest)
	}

	key := Key(a, b)
	slot := documentID(a, b)
	if c, ok := r.cached(slot); ok {
		return c, nil
	}

	// The flight outlives any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(slot, func() (any, error) {
		if c, ok := r.cached(slot); ok {
			return c, nil
		}

		c, err := r.findOrCreate(flightCtx, key, slot, a, b)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[slot] = c
		r.mu.Unlock()
		return c, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Conversation{}, ctx.Err()
	}

	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		r.logger.Error(ctx, "failed to resolve conversation", "key", key, "error", err)
		return Conversation{}, err
	}

	if shared {
		r.logger.Debug(ctx, "conversation resolution shared", "key", key)
	}
	return v.(Conversation), nil
}

func (r *Resolver) cached(key string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[key]
	return c, ok
}

func (r *Resolver) findOrCreate(ctx context.Context, key, slot, a, b string) (Conversation, error) {
	users := map[string]any{a: true, b: true}

	docs, err := r.store.Query(ctx, backend.Query{
		Collection: privateCollection,
		Filters:    []backend.Filter{{Field: "users", Value: users}},
		Limit:      1,
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("looking up conversation: %w", err)
	}
	if len(docs) > 0 {
		return newConversation(docs[0].ID, key, a, b), nil
	}

	path := backend.Join(privateCollection, slot)
	err = r.store.Create(ctx, path, map[string]any{"users": users})
	switch {
	case err == nil:
		r.logger.Info(ctx, "conversation created", "conversation_id", slot)
		return newConversation(slot, key, a, b), nil
	case errors.Is(err, common.ErrAlreadyExists):
		doc, err := r.store.Get(ctx, path)
		if err != nil {
			return Conversation{}, fmt.Errorf("reading existing conversation: %w", err)
		}
		if sameUsers(doc.Data["users"], users) {
			return newConversation(doc.ID, key, a, b), nil
		}

		r.logger.Warn(ctx, "conversation slot held by another pair", "conversation_id", slot)
		id, err := r.store.Add(ctx, privateCollection, map[string]any{"users": users})
		if err != nil {
			return Conversation{}, fmt.Errorf("creating conversation: %w", err)
		}
		return newConversation(id, key, a, b), nil
	default:
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
}

func sameUsers(stored any, want map[string]any) bool {
	got, ok := stored.(map[string]any)
	return ok && reflect.DeepEqual(got, want)
}

func newConversation(id, key, a, b string) Conversation {
	p := []string{a, b}
	sort.Strings(p)
	return Conversation{ID: id, Key: key, Participants: [2]string{p[0], p[1]}}
}
