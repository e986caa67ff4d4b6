package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

func TestToFirestore_ReplacesServerTimestamp(t *testing.T) {
	now := time.Now()
	in := map[string]any{
		"text":       "hi",
		"created_at": backend.ServerTimestamp,
		"meta":       map[string]any{"edited_at": backend.ServerTimestamp, "at": now},
	}

	out := toFirestore(in)

	assert.Equal(t, "hi", out["text"])
	assert.Equal(t, firestore.ServerTimestamp, out["created_at"])
	meta := out["meta"].(map[string]any)
	assert.Equal(t, firestore.ServerTimestamp, meta["edited_at"])
	assert.Equal(t, now, meta["at"])

	assert.True(t, backend.IsServerTimestamp(in["created_at"]), "input must not be mutated")
}

func TestMapError(t *testing.T) {
	require.NoError(t, mapError("Get", nil))
	require.Equal(t, common.ErrNotFound, mapError("Get", status.Error(codes.NotFound, "x")))
	require.Equal(t, common.ErrAlreadyExists, mapError("Create", status.Error(codes.AlreadyExists, "x")))
	require.ErrorIs(t, mapError("Set", status.Error(codes.PermissionDenied, "x")), common.ErrUnauthorized)
	require.ErrorIs(t, mapError("Set", status.Error(codes.Unauthenticated, "x")), common.ErrUnauthorized)
	require.ErrorIs(t, mapError("Add", status.Error(codes.Unavailable, "x")), common.ErrUnavailable)
	require.ErrorIs(t, mapError("Add", status.Error(codes.DeadlineExceeded, "x")), common.ErrUnavailable)

	plain := errors.New("plain")
	err := mapError("Query", plain)
	require.ErrorIs(t, err, plain)
	require.ErrorContains(t, err, "firestore Query")
}

func TestDirection(t *testing.T) {
	assert.Equal(t, firestore.Asc, direction(backend.Asc))
	assert.Equal(t, firestore.Desc, direction(backend.Desc))
}

func TestNewStore_RequiresProject(t *testing.T) {
	_, err := NewStore(context.Background(), "", "", nil)
	require.Error(t, err)
}
