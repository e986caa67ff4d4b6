// Package backend declares the ports gophchat uses to talk to its hosted
// backend: authentication, a document store with realtime queries, and blob
// storage. Concrete adapters live in the sub-packages (memory, firestore,
// pgauth, s3blob).
//
// # Paths
//
// Documents are addressed by slash-separated paths that alternate
// collection and document IDs, e.g. "private-chats/abc/messages/xyz".
//
// # Errors
//
// Adapters translate vendor failures into the sentinels of package common
// (common.ErrNotFound, common.ErrAlreadyExists, common.ErrUnavailable, ...)
// so services can match them with errors.Is.
package backend

import (
	"context"
	"io"
	"strings"
	"time"
)

// User is the identity record owned by the authentication service.
type User struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
}

// UserUpdate carries a partial update of the current user's auth record.
// Nil fields are left untouched.
type UserUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// Authenticator is the authentication half of the backend.
//
// OnAuthStateChanged delivers the current state once on registration and then
// once per sign-in and once per sign-out. A nil *User means signed out.
type Authenticator interface {
	CreateAccount(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	UpdateCurrentUser(ctx context.Context, upd UserUpdate) error
	OnAuthStateChanged(fn func(*User)) (unsubscribe func())
}

// Document is a snapshot of a stored document.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Time returns the time.Time stored under field, or the zero time when the
// field is missing or not yet resolved by the server.
func (d *Document) Time(field string) time.Time {
	t, _ := d.Data[field].(time.Time)
	return t
}

// String returns the string stored under field, or "".
func (d *Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value replaced by the server's clock
// at write time.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality filter. Value may be a map; maps compare by content.
type Filter struct {
	Field string
	Value any
}

// Order sorts query results by Field.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from a single collection.
//
// StartAfter holds cursor values for the OrderBy fields, in order; results
// begin strictly after the matching position.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
	StartAfter []any
}

// DocumentStore is the document-database half of the backend.
//
//   - Set creates or overwrites a document.
//   - Create fails with common.ErrAlreadyExists when the document exists.
//   - Update merges fields into an existing document, common.ErrNotFound otherwise.
//   - Add appends a document with a generated ID to a collection.
//   - Subscribe invokes fn with the full ordered result on every change,
//     until cancel is called or ctx ends.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data map[string]any) error
	Create(ctx context.Context, path string, data map[string]any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	Subscribe(ctx context.Context, q Query, fn func([]*Document)) (cancel func(), err error)
	Delete(ctx context.Context, path string) error
}

// BlobStore is the object-storage half of the backend.
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) error
	URL(ctx context.Context, path string) (string, error)
}

// Join builds a document or collection path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the parent collection path and the document ID of a
// document path. ok is false when path does not name a document.
func SplitPath(path string) (collection, id string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", false
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], true
}
