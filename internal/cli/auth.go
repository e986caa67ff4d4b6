package cli

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/session"
)

// getSimpleText, getPassword and getMultiline are indirections for tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

// Register prompts for an email and a password and creates the account,
// which also signs it in.
func (a *App) Register(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	snap, err := a.accounts.Register(ctx, email, string(password))
	if err != nil {
		return err
	}

	a.println("Welcome,", snap.Email)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	snap, err := a.accounts.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	a.println("Logged in as", snap.Email)
	return nil
}

// Logout drops every watch before signing out so no listener outlives the
// session it was opened for.
func (a *App) Logout(ctx context.Context) error {
	a.dropWatches()
	return a.accounts.Logout(ctx)
}

func (a *App) WhoAmI(ctx context.Context) error {
	cur := a.session.Current()
	if cur.ID == "" {
		a.println("Not logged in")
		return nil
	}

	a.printf("ID:      %s\nEmail:   %s\nName:    %s\nPhoto:   %s\nBio:     %s\nCareer:  %s\nState:   %s\n",
		cur.ID, cur.Email, cur.DisplayName, cur.PhotoURL, cur.Bio, cur.Career, cur.State)
	if cur.State == session.StateError {
		a.println("Last error:", cur.Err)
	}
	return nil
}

func (a *App) credentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

func (a *App) currentUser() (session.Snapshot, error) {
	cur := a.session.Current()
	if cur.ID == "" {
		return cur, common.ErrNotLoggedIn
	}
	return cur, nil
}
