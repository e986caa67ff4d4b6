// Package firestore implements backend.DocumentStore on Cloud Firestore.
// Realtime subscriptions use query snapshot listeners. Set
// FIRESTORE_EMULATOR_HOST to run against the local emulator.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

type Store struct {
	client *firestore.Client
	logger logging.Logger
}

// NewStore creates a Firestore-backed store for projectID. credentialsFile
// is optional; application default credentials are used when empty.
func NewStore(ctx context.Context, projectID, credentialsFile string, logger logging.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, ok := backend.SplitPath(path); !ok {
		return nil, fmt.Errorf("%w: bad document path %q", common.ErrInvalidRequest, path)
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: bad document path %q", common.ErrInvalidRequest, path)
	}
	return ref, nil
}

func (s *Store) query(q backend.Query) firestore.Query {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, "==", f.Value)
	}
	for _, o := range q.OrderBy {
		fq = fq.OrderBy(o.Field, direction(o.Direction))
	}
	if len(q.StartAfter) > 0 {
		fq = fq.StartAfter(q.StartAfter...)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func direction(d backend.Direction) firestore.Direction {
	if d == backend.Desc {
		return firestore.Desc
	}
	return firestore.Asc
}

// toFirestore copies data, swapping backend.ServerTimestamp for the
// Firestore sentinel at any depth.
func toFirestore(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = toFirestore(vv)
		default:
			if backend.IsServerTimestamp(v) {
				out[k] = firestore.ServerTimestamp
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func toDocument(collection string, snap *firestore.DocumentSnapshot) *backend.Document {
	return &backend.Document{
		ID:   snap.Ref.ID,
		Path: backend.Join(collection, snap.Ref.ID),
		Data: snap.Data(),
	}
}

// mapError translates gRPC status codes into common sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return common.ErrNotFound
	case codes.AlreadyExists:
		return common.ErrAlreadyExists
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("firestore %s: %w", op, common.ErrUnauthorized)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("firestore %s: %w", op, common.ErrUnavailable)
	default:
		return fmt.Errorf("firestore %s: %w", op, err)
	}
}

// ─────────────────────────────────────────
// DocumentStore implementation
// ─────────────────────────────────────────

func (s *Store) Get(ctx context.Context, path string) (*backend.Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, mapError("Get", err)
	}

	collection, _, _ := backend.SplitPath(path)
	return toDocument(collection, snap), nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, toFirestore(data))
	return mapError("Set", err)
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, toFirestore(data))
	return mapError("Create", err)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}

	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}

	_, err = ref.Update(ctx, updates)
	return mapError("Update", err)
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(data))
	if err != nil {
		return "", mapError("Add", err)
	}
	return ref.ID, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return mapError("Delete", err)
}

func (s *Store) Query(ctx context.Context, q backend.Query) ([]*backend.Document, error) {
	iter := s.query(q).Documents(ctx)
	defer iter.Stop()

	var out []*backend.Document
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, mapError("Query", err)
		}
		out = append(out, toDocument(q.Collection, snap))
	}
	return out, nil
}

// Subscribe attaches a snapshot listener to q. fn receives the full result
// set on every change. The listener goroutine exits when cancel is called,
// ctx ends, or the stream fails; stream failures are logged.
func (s *Store) Subscribe(ctx context.Context, q backend.Query, fn func([]*backend.Document)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	iter := s.query(q).Snapshots(ctx)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			iter.Stop()
		})
	}

	go func() {
		defer cancel()
		for {
			qs, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) {
					s.logger.Error(ctx, "snapshot listener stopped", "collection", q.Collection, "error", err)
				}
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				s.logger.Error(ctx, "reading snapshot documents", "collection", q.Collection, "error", err)
				return
			}

			docs := make([]*backend.Document, 0, len(snaps))
			for _, snap := range snaps {
				docs = append(docs, toDocument(q.Collection, snap))
			}
			fn(docs)
		}
	}()

	return cancel, nil
}
