package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

type PrivateChat struct {
	resolver *Resolver
	store    backend.DocumentStore
	logger   logging.Logger
}

func NewPrivateChat(resolver *Resolver, store backend.DocumentStore, logger logging.Logger) *PrivateChat {
	return &PrivateChat{resolver: resolver, store: store, logger: logger}
}

// Send appends text from senderID to the conversation with receiverID and
// returns the new message ID.
func (p *PrivateChat) Send(ctx context.Context, senderID, receiverID, text string) (string, error) {
	conv, err := p.resolver.Resolve(ctx, senderID, receiverID)
	if err != nil {
		return "", err
	}
	return p.SendTo(ctx, conv, senderID, text)
}

// SendTo appends a message to an already resolved conversation.
func (p *PrivateChat) SendTo(ctx context.Context, conv Conversation, senderID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty message", common.ErrInvalidRequest)
	}

	id, err := p.store.Add(ctx, conv.MessagesPath(), map[string]any{
		"user_id":    senderID,
		"text":       text,
		"created_at": backend.ServerTimestamp,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to send private message", "conversation_id", conv.ID, "error", err)
		return "", fmt.Errorf("sending private message: %w", err)
	}
	return id, nil
}

// Subscribe streams the full conversation, oldest first, to fn on every
// change until cancel is called or ctx ends.
func (p *PrivateChat) Subscribe(ctx context.Context, senderID, receiverID string, fn func([]Message)) (cancel func(), err error) {
	conv, err := p.resolver.Resolve(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	cancel, err = p.store.Subscribe(ctx, byCreation(conv.MessagesPath()), func(docs []*backend.Document) {
		fn(toMessages(docs))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to conversation %s: %w", conv.ID, err)
	}
	return cancel, nil
}
