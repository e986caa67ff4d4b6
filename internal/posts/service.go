// Package posts is the post feed: posts are appended and read back newest
// first, one fixed-size page at a time.
package posts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const (
	collection = "posts"

	DefaultPageSize = 3
)

type Post struct {
	ID        string
	UserID    string
	Email     string
	Title     string
	Body      string
	CreatedAt time.Time
}

type Service struct {
	store    backend.DocumentStore
	pageSize int
	logger   logging.Logger
}

// NewService returns a feed reading pageSize posts per page. Non-positive
// sizes fall back to DefaultPageSize.
func NewService(store backend.DocumentStore, pageSize int, logger logging.Logger) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{store: store, pageSize: pageSize, logger: logger}
}

// Create publishes p and returns its ID. CreatedAt is assigned by the backend.
func (s *Service) Create(ctx context.Context, p Post) (string, error) {
	if p.UserID == "" || strings.TrimSpace(p.Title) == "" {
		return "", fmt.Errorf("%w: post needs an author and a title", common.ErrInvalidRequest)
	}

	id, err := s.store.Add(ctx, collection, map[string]any{
		"user_id":    p.UserID,
		"email":      p.Email,
		"title":      p.Title,
		"body":       p.Body,
		"created_at": backend.ServerTimestamp,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to create post", "user_id", p.UserID, "error", err)
		return "", fmt.Errorf("creating post: %w", err)
	}
	return id, nil
}

// Fetch returns the newest page of posts.
func (s *Service) Fetch(ctx context.Context) ([]Post, error) {
	return s.fetch(ctx, nil)
}

// FetchFrom returns the page of posts strictly older than createdAt,
// normally the CreatedAt of the last post of the previous page.
func (s *Service) FetchFrom(ctx context.Context, createdAt time.Time) ([]Post, error) {
	return s.fetch(ctx, []any{createdAt})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, backend.Join(collection, id)); err != nil {
		s.logger.Error(ctx, "failed to delete post", "post_id", id, "error", err)
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, cursor []any) ([]Post, error) {
	docs, err := s.store.Query(ctx, backend.Query{
		Collection: collection,
		OrderBy:    []backend.Order{{Field: "created_at", Direction: backend.Desc}},
		Limit:      s.pageSize,
		StartAfter: cursor,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to fetch posts", "error", err)
		return nil, fmt.Errorf("fetching posts: %w", err)
	}

	out := make([]Post, 0, len(docs))
	for _, d := range docs {
		out = append(out, Post{
			ID:        d.ID,
			UserID:    d.String("user_id"),
			Email:     d.String("email"),
			Title:     d.String("title"),
			Body:      d.String("body"),
			CreatedAt: d.Time("created_at"),
		})
	}
	return out, nil
}
