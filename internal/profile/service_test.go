package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophchat/internal/backend/memory"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

func ptr(s string) *string { return &s }

func TestService_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewDocumentStore(), logging.Discard())

	require.NoError(t, s.Create(ctx, "u1", "a@x.com"))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &Profile{ID: "u1", Email: "a@x.com"}, p)

	require.NoError(t, s.Update(ctx, "u1", Patch{Bio: ptr("hi"), Career: ptr("eng")}))
	require.NoError(t, s.Update(ctx, "u1", Patch{DisplayName: ptr("Ann")}))

	p, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &Profile{ID: "u1", Email: "a@x.com", DisplayName: "Ann", Bio: "hi", Career: "eng"}, p)
}

func TestService_GetMissing(t *testing.T) {
	s := NewService(memory.NewDocumentStore(), logging.Discard())

	_, err := s.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_UpdateMissingProfile(t *testing.T) {
	s := NewService(memory.NewDocumentStore(), logging.Discard())

	err := s.Update(context.Background(), "ghost", Patch{Bio: ptr("x")})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_EmptyPatchIsNoop(t *testing.T) {
	s := NewService(memory.NewDocumentStore(), logging.Discard())

	require.NoError(t, s.Update(context.Background(), "ghost", Patch{}))
}
