package chat

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/backend"
)

const (
	publicCollection  = "public-chat"
	privateCollection = "private-chats"
	messagesSub       = "messages"
)

// Message is a chat line. Email is filled for public chat messages only.
type Message struct {
	ID        string
	UserID    string
	Email     string
	Text      string
	CreatedAt time.Time
}

func toMessages(docs []*backend.Document) []Message {
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, Message{
			ID:        d.ID,
			UserID:    d.String("user_id"),
			Email:     d.String("email"),
			Text:      d.String("text"),
			CreatedAt: d.Time("created_at"),
		})
	}
	return out
}

func byCreation(collection string) backend.Query {
	return backend.Query{
		Collection: collection,
		OrderBy:    []backend.Order{{Field: "created_at", Direction: backend.Asc}},
	}
}
