// Package account ties the backend authenticator to the local session:
// registration, login, logout, profile and photo edits, and the handling of
// auth-state events that hydrate the session in two phases.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/profile"
	"github.com/dmitrijs2005/gophchat/internal/session"
)

// Profiles is the part of profile.Service the account flows need.
type Profiles interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
	Create(ctx context.Context, id, email string) error
	Update(ctx context.Context, id string, p profile.Patch) error
}

type Service struct {
	auth     backend.Authenticator
	blobs    backend.BlobStore
	profiles Profiles
	session  *session.Store
	logger   logging.Logger
}

func NewService(
	auth backend.Authenticator,
	blobs backend.BlobStore,
	profiles Profiles,
	sess *session.Store,
	logger logging.Logger,
) *Service {
	return &Service{
		auth:     auth,
		blobs:    blobs,
		profiles: profiles,
		session:  sess,
		logger:   logger,
	}
}

// Start follows the backend auth state and mirrors it into the session.
// The backend reports the current state right away, which confirms or
// replaces whatever the session rehydrated from local storage.
func (s *Service) Start(ctx context.Context) (stop func()) {
	return s.auth.OnAuthStateChanged(func(u *backend.User) {
		if u == nil {
			s.signedOut(ctx)
			return
		}
		s.signedIn(ctx, *u)
	})
}

func (s *Service) signedOut(ctx context.Context) {
	cur := s.session.Current()
	if cur.IsZero() && cur.State == session.StateUnauthenticated {
		return
	}
	s.logger.Info(ctx, "signed out", "user_id", cur.ID)
	s.session.Reset(ctx)
}

func (s *Service) signedIn(ctx context.Context, u backend.User) {
	p := session.Patch{
		ID:          session.String(u.ID),
		Email:       session.String(u.Email),
		DisplayName: session.String(u.DisplayName),
		PhotoURL:    session.String(u.PhotoURL),
		FullyLoaded: session.Bool(false),
		State:       session.StateOf(session.StatePartiallyLoaded),
		Err:         session.String(""),
	}
	if s.session.Current().ID != u.ID {
		p.Bio = session.String("")
		p.Career = session.String("")
	}
	s.session.Update(ctx, p)
	s.logger.Info(ctx, "signed in", "user_id", u.ID)

	sameUser := func(sn session.Snapshot) bool { return sn.ID == u.ID }

	prof, err := s.profiles.Get(ctx, u.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		// Registration writes the profile after the account exists.
		prof = &profile.Profile{ID: u.ID}
	case err != nil:
		s.logger.Error(ctx, "profile fetch after sign-in failed", "user_id", u.ID, "error", err)
		s.session.UpdateIf(ctx, sameUser, session.Patch{
			State: session.StateOf(session.StateError),
			Err:   session.String(err.Error()),
		})
		return
	}

	applied := s.session.UpdateIf(ctx, sameUser, session.Patch{
		Bio:         session.String(prof.Bio),
		Career:      session.String(prof.Career),
		FullyLoaded: session.Bool(true),
		State:       session.StateOf(session.StateFullyLoaded),
	})
	if !applied {
		s.logger.Debug(ctx, "discarding stale profile", "user_id", u.ID)
	}
}

// Register creates an account, which also signs it in, and its profile.
func (s *Service) Register(ctx context.Context, email, password string) (session.Snapshot, error) {
	s.beginAuth(ctx)
	u, err := s.auth.CreateAccount(ctx, email, password)
	if err != nil {
		s.abortAuth(ctx)
		s.logger.Warn(ctx, "registration failed", "email", email, "error", err)
		return session.Snapshot{}, fmt.Errorf("creating account: %w", err)
	}

	if err := s.profiles.Create(ctx, u.ID, u.Email); err != nil {
		return session.Snapshot{}, err
	}
	return s.session.Current(), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	s.beginAuth(ctx)
	if _, err := s.auth.SignIn(ctx, email, password); err != nil {
		s.abortAuth(ctx)
		s.logger.Warn(ctx, "login failed", "email", email, "error", err)
		return session.Snapshot{}, fmt.Errorf("signing in: %w", err)
	}
	return s.session.Current(), nil
}

func (s *Service) Logout(ctx context.Context) error {
	if _, err := s.requireLogin(); err != nil {
		return err
	}

	if err := s.auth.SignOut(ctx); err != nil {
		s.logger.Error(ctx, "sign-out failed", "error", err)
		return fmt.Errorf("signing out: %w", err)
	}

	// Adapters that do not emit events still leave the session signed out.
	if s.session.IsLoggedIn() {
		s.session.Reset(ctx)
	}
	return nil
}

// EditProfile writes the auth record and the profile document concurrently.
// The session is updated only when both writes succeed.
func (s *Service) EditProfile(ctx context.Context, displayName, bio, career string) error {
	id, err := s.requireLogin()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.auth.UpdateCurrentUser(gctx, backend.UserUpdate{DisplayName: &displayName})
	})
	g.Go(func() error {
		return s.profiles.Update(gctx, id, profile.Patch{
			DisplayName: &displayName,
			Bio:         &bio,
			Career:      &career,
		})
	})
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "profile edit failed", "user_id", id, "error", err)
		return fmt.Errorf("editing profile: %w", err)
	}

	s.session.UpdateIf(ctx, func(sn session.Snapshot) bool { return sn.ID == id }, session.Patch{
		DisplayName: &displayName,
		Bio:         &bio,
		Career:      &career,
	})
	return nil
}

// EditPhoto uploads a new avatar and points the auth record, the profile
// and the session at it.
func (s *Service) EditPhoto(ctx context.Context, r io.Reader, contentType string) error {
	id, err := s.requireLogin()
	if err != nil {
		return err
	}

	path := AvatarPath(id, contentType)
	if err := s.blobs.Upload(ctx, path, r, contentType); err != nil {
		s.logger.Error(ctx, "avatar upload failed", "user_id", id, "error", err)
		return fmt.Errorf("uploading avatar: %w", err)
	}

	url, err := s.blobs.URL(ctx, path)
	if err != nil {
		return fmt.Errorf("resolving avatar URL: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.auth.UpdateCurrentUser(gctx, backend.UserUpdate{PhotoURL: &url})
	})
	g.Go(func() error {
		return s.profiles.Update(gctx, id, profile.Patch{PhotoURL: &url})
	})
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "photo edit failed", "user_id", id, "error", err)
		return fmt.Errorf("editing photo: %w", err)
	}

	s.session.UpdateIf(ctx, func(sn session.Snapshot) bool { return sn.ID == id }, session.Patch{
		PhotoURL: &url,
	})
	return nil
}

// beginAuth marks a signed-out session as waiting for the backend.
func (s *Service) beginAuth(ctx context.Context) {
	s.session.UpdateIf(ctx, func(sn session.Snapshot) bool { return sn.ID == "" }, session.Patch{
		State: session.StateOf(session.StateAuthenticating),
	})
}

// abortAuth undoes beginAuth unless a sign-in landed in the meantime.
func (s *Service) abortAuth(ctx context.Context) {
	s.session.UpdateIf(ctx, func(sn session.Snapshot) bool {
		return sn.ID == "" && sn.State == session.StateAuthenticating
	}, session.Patch{
		State: session.StateOf(session.StateUnauthenticated),
	})
}

func (s *Service) requireLogin() (string, error) {
	cur := s.session.Current()
	if cur.ID == "" {
		return "", common.ErrNotLoggedIn
	}
	return cur.ID, nil
}
