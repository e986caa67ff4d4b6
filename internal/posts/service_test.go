package posts

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophchat/internal/backend/memory"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

func seed(t *testing.T, s *Service, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		id, err := s.Create(context.Background(), Post{
			UserID: "u1",
			Email:  "a@x.com",
			Title:  fmt.Sprintf("post %d", i),
			Body:   "body",
		})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func titles(ps []Post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func TestFetch_NewestFirstInPages(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewDocumentStore(), 0, logging.Discard())
	seed(t, s, 7)

	page, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"post 6", "post 5", "post 4"}, titles(page))
	assert.Equal(t, "a@x.com", page[0].Email)
	assert.Equal(t, "u1", page[0].UserID)

	page, err = s.FetchFrom(ctx, page[len(page)-1].CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"post 3", "post 2", "post 1"}, titles(page))

	page, err = s.FetchFrom(ctx, page[len(page)-1].CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"post 0"}, titles(page))

	page, err = s.FetchFrom(ctx, page[0].CreatedAt)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestFetch_CustomPageSize(t *testing.T) {
	s := NewService(memory.NewDocumentStore(), 5, logging.Discard())
	seed(t, s, 7)

	page, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewDocumentStore(), 3, logging.Discard())
	ids := seed(t, s, 2)

	require.NoError(t, s.Delete(ctx, ids[1]))

	page, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"post 0"}, titles(page))
}

func TestCreate_Validation(t *testing.T) {
	s := NewService(memory.NewDocumentStore(), 3, logging.Discard())

	_, err := s.Create(context.Background(), Post{Title: "no author"})
	require.ErrorIs(t, err, common.ErrInvalidRequest)
	_, err = s.Create(context.Background(), Post{UserID: "u1"})
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}
