package cli

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/posts"
)

// Posts prints the newest page of the feed and resets the "more" cursor.
func (a *App) Posts(ctx context.Context) error {
	if _, err := a.currentUser(); err != nil {
		return err
	}

	page, err := a.feed.Fetch(ctx)
	if err != nil {
		return err
	}
	a.showPage(page)
	return nil
}

// More prints the page after the last one shown.
func (a *App) More(ctx context.Context) error {
	if _, err := a.currentUser(); err != nil {
		return err
	}

	a.mu.Lock()
	cursor := a.cursor
	a.mu.Unlock()

	if cursor.IsZero() {
		return a.Posts(ctx)
	}

	page, err := a.feed.FetchFrom(ctx, cursor)
	if err != nil {
		return err
	}
	if len(page) == 0 {
		a.println("No more posts")
		return nil
	}
	a.showPage(page)
	return nil
}

func (a *App) Post(ctx context.Context) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}

	title, err := getSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return common.ErrInvalidRequest
	}
	body, err := getMultiline(a.reader, "Body", a.out)
	if err != nil {
		return err
	}

	id, err := a.feed.Create(ctx, posts.Post{UserID: cur.ID, Email: cur.Email, Title: title, Body: body})
	if err != nil {
		return err
	}
	a.println("Published", id)
	return nil
}

func (a *App) Delete(ctx context.Context, postID string) error {
	if _, err := a.currentUser(); err != nil {
		return err
	}
	if err := a.feed.Delete(ctx, postID); err != nil {
		return err
	}
	a.println("Deleted", postID)
	return nil
}

func (a *App) showPage(page []posts.Post) {
	if len(page) == 0 {
		a.println("No posts yet")
		return
	}

	for _, p := range page {
		a.printf("%s  %s  %s by %s\n", p.ID, p.CreatedAt.Local().Format(time.DateTime), p.Title, p.Email)
		if p.Body != "" {
			a.println("   ", strings.ReplaceAll(p.Body, "\n", "\n    "))
		}
	}

	a.mu.Lock()
	a.cursor = page[len(page)-1].CreatedAt
	a.mu.Unlock()
}
