// Package profile manages the per-user profile documents stored under
// users/{id}.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const collection = "users"

type Profile struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
	Bio         string
	Career      string
}

// Patch is a partial profile update. Nil fields are left untouched.
type Patch struct {
	DisplayName *string
	PhotoURL    *string
	Bio         *string
	Career      *string
}

func (p Patch) fields() map[string]any {
	out := make(map[string]any)
	if p.DisplayName != nil {
		out["displayName"] = *p.DisplayName
	}
	if p.PhotoURL != nil {
		out["photoURL"] = *p.PhotoURL
	}
	if p.Bio != nil {
		out["bio"] = *p.Bio
	}
	if p.Career != nil {
		out["career"] = *p.Career
	}
	return out
}

type Service struct {
	store  backend.DocumentStore
	logger logging.Logger
}

func NewService(store backend.DocumentStore, logger logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the profile of id, or common.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	doc, err := s.store.Get(ctx, path(id))
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "failed to fetch profile", "user_id", id, "error", err)
		}
		return nil, fmt.Errorf("fetching profile %s: %w", id, err)
	}

	return &Profile{
		ID:          doc.ID,
		Email:       doc.String("email"),
		DisplayName: doc.String("displayName"),
		PhotoURL:    doc.String("photoURL"),
		Bio:         doc.String("bio"),
		Career:      doc.String("career"),
	}, nil
}

// Create writes the initial profile of a freshly registered user.
func (s *Service) Create(ctx context.Context, id, email string) error {
	if err := s.store.Set(ctx, path(id), map[string]any{"email": email}); err != nil {
		s.logger.Error(ctx, "failed to create profile", "user_id", id, "error", err)
		return fmt.Errorf("creating profile %s: %w", id, err)
	}
	return nil
}

// Update merges p into the profile of id. An empty patch is a no-op.
func (s *Service) Update(ctx context.Context, id string, p Patch) error {
	fields := p.fields()
	if len(fields) == 0 {
		return nil
	}

	if err := s.store.Update(ctx, path(id), fields); err != nil {
		s.logger.Error(ctx, "failed to update profile", "user_id", id, "error", err)
		return fmt.Errorf("updating profile %s: %w", id, err)
	}
	return nil
}

func path(id string) string {
	return backend.Join(collection, id)
}
