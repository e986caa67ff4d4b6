package cli

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// readFile is a test seam for os.ReadFile.
var readFile = os.ReadFile

// Profile prints the profile of userID, or of the signed-in user when
// userID is empty.
func (a *App) Profile(ctx context.Context, userID string) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}
	if userID == "" {
		userID = cur.ID
	}

	p, err := a.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}

	a.printf("ID:      %s\nEmail:   %s\nName:    %s\nPhoto:   %s\nBio:     %s\nCareer:  %s\n",
		p.ID, p.Email, p.DisplayName, p.PhotoURL, p.Bio, p.Career)
	return nil
}

// EditProfile prompts for the editable fields. An empty answer keeps the
// current value.
func (a *App) EditProfile(ctx context.Context) error {
	cur, err := a.currentUser()
	if err != nil {
		return err
	}

	name, err := a.askDefault("Display name", cur.DisplayName)
	if err != nil {
		return err
	}
	bio, err := a.askDefault("Bio", cur.Bio)
	if err != nil {
		return err
	}
	career, err := a.askDefault("Career", cur.Career)
	if err != nil {
		return err
	}

	if err := a.accounts.EditProfile(ctx, name, bio, career); err != nil {
		return err
	}
	a.println("Profile updated")
	return nil
}

// Photo uploads the image at file as the signed-in user's avatar.
func (a *App) Photo(ctx context.Context, file string) error {
	if _, err := a.currentUser(); err != nil {
		return err
	}

	data, err := readFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	if err := a.accounts.EditPhoto(ctx, bytes.NewReader(data), contentType(file, data)); err != nil {
		return err
	}
	a.println("Photo updated:", a.session.Current().PhotoURL)
	return nil
}

func (a *App) askDefault(prompt, current string) (string, error) {
	if current != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, current)
	}
	v, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	if v == "" {
		return current, nil
	}
	return v, nil
}

// contentType guesses from the extension first, then sniffs the bytes.
func contentType(file string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
