package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

type PublicChat struct {
	store  backend.DocumentStore
	logger logging.Logger
}

func NewPublicChat(store backend.DocumentStore, logger logging.Logger) *PublicChat {
	return &PublicChat{store: store, logger: logger}
}

// Send posts m to the public room. ID and CreatedAt are assigned by the
// backend.
func (c *PublicChat) Send(ctx context.Context, m Message) (string, error) {
	if m.UserID == "" || strings.TrimSpace(m.Text) == "" {
		return "", fmt.Errorf("%w: message needs an author and text", common.ErrInvalidRequest)
	}

	id, err := c.store.Add(ctx, publicCollection, map[string]any{
		"user_id":    m.UserID,
		"email":      m.Email,
		"text":       m.Text,
		"created_at": backend.ServerTimestamp,
	})
	if err != nil {
		c.logger.Error(ctx, "failed to send public message", "user_id", m.UserID, "error", err)
		return "", fmt.Errorf("sending public message: %w", err)
	}
	return id, nil
}

func (c *PublicChat) Subscribe(ctx context.Context, fn func([]Message)) (cancel func(), err error) {
	cancel, err = c.store.Subscribe(ctx, byCreation(publicCollection), func(docs []*backend.Document) {
		fn(toMessages(docs))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to public chat: %w", err)
	}
	return cancel, nil
}
