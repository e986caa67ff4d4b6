package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/chat"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

// historyLimit caps the number of messages printed by public and chat.
const historyLimit = 20

const publicWatch = "public"

func (a *App) Say(ctx context.Context, text string) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}
	_, err = a.public.Send(ctx, chat.Message{UserID: cur.ID, Email: cur.Email, Text: text})
	return err
}

func (a *App) Public(ctx context.Context) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}

	msgs, err := firstDelivery(ctx, func(fn func([]chat.Message)) (func(), error) {
		return a.public.Subscribe(ctx, fn)
	})
	if err != nil {
		return err
	}
	a.printHistory(cur.ID, msgs)
	return nil
}

func (a *App) DM(ctx context.Context, userID, text string) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}
	_, err = a.private.Send(ctx, cur.ID, userID, text)
	return err
}

func (a *App) Chat(ctx context.Context, userID string) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}

	msgs, err := firstDelivery(ctx, func(fn func([]chat.Message)) (func(), error) {
		return a.private.Subscribe(ctx, cur.ID, userID, fn)
	})
	if err != nil {
		return err
	}
	a.printHistory(cur.ID, msgs)
	return nil
}

// Watch prints messages as they arrive: the public room when userID is
// empty, the conversation with userID otherwise. Messages already present
// when the watch starts are not printed.
func (a *App) Watch(ctx context.Context, userID string) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}

	key := publicWatch
	if userID != "" {
		key = userID
	}

	a.mu.Lock()
	_, exists := a.watches[key]
	a.mu.Unlock()
	if exists {
		a.println("Already watching", key)
		return nil
	}

	w := newMessageWatch(func(m chat.Message) {
		a.println(fmt.Sprintf("[%s]", key), formatMessage(cur.ID, m))
	})

	var cancel func()
	if userID == "" {
		cancel, err = a.public.Subscribe(ctx, w.deliver)
	} else {
		cancel, err = a.private.Subscribe(ctx, cur.ID, userID, w.deliver)
	}
	if err != nil {
		return err
	}

	// The session may have moved on while subscribing.
	a.mu.Lock()
	if a.session.Current().ID != cur.ID {
		a.mu.Unlock()
		cancel()
		return common.ErrNotLoggedIn
	}
	a.watches[key] = cancel
	a.mu.Unlock()

	a.println("Watching", key)
	return nil
}

func (a *App) Unwatch(ctx context.Context, userID string) error {
	key := publicWatch
	if userID != "" {
		key = userID
	}

	a.mu.Lock()
	cancel, ok := a.watches[key]
	delete(a.watches, key)
	a.mu.Unlock()

	if !ok {
		a.println("Not watching", key)
		return nil
	}
	cancel()
	return nil
}

func (a *App) printHistory(selfID string, msgs []chat.Message) {
	if len(msgs) == 0 {
		a.println("No messages yet")
		return
	}
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	for _, m := range msgs {
		a.println(formatMessage(selfID, m))
	}
}

func formatMessage(selfID string, m chat.Message) string {
	from := m.Email
	switch {
	case m.UserID == selfID:
		from = "you"
	case from == "":
		from = m.UserID
	}

	at := "--:--"
	if !m.CreatedAt.IsZero() {
		at = m.CreatedAt.Local().Format("15:04")
	}
	return fmt.Sprintf("%s %s: %s", at, from, m.Text)
}

// firstDelivery subscribes, waits for the first result set and cancels.
func firstDelivery(ctx context.Context, subscribe func(fn func([]chat.Message)) (func(), error)) ([]chat.Message, error) {
	ch := make(chan []chat.Message, 1)
	cancel, err := subscribe(func(msgs []chat.Message) {
		select {
		case ch <- msgs:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer cancel()

	timer := time.NewTimer(historyTimeout)
	defer timer.Stop()

	select {
	case msgs := <-ch:
		return msgs, nil
	case <-timer.C:
		return nil, fmt.Errorf("no messages within %s: %w", historyTimeout, common.ErrUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// messageWatch turns full result sets into a stream of new messages.
type messageWatch struct {
	mu     sync.Mutex
	seen   map[string]bool
	primed bool
	emit   func(chat.Message)
}

func newMessageWatch(emit func(chat.Message)) *messageWatch {
	return &messageWatch{seen: make(map[string]bool), emit: emit}
}

func (w *messageWatch) deliver(msgs []chat.Message) {
	w.mu.Lock()
	var fresh []chat.Message
	for _, m := range msgs {
		if w.seen[m.ID] {
			continue
		}
		w.seen[m.ID] = true
		if w.primed {
			fresh = append(fresh, m)
		}
	}
	w.primed = true
	w.mu.Unlock()

	for _, m := range fresh {
		w.emit(m)
	}
}
