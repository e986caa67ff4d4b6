package pgauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// TokenStore keeps the session token between runs. Load returns (nil, nil)
// when no token is stored.
type TokenStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, token []byte) error
	Clear(ctx context.Context) error
}

type Authenticator struct {
	repo     Repository
	tokens   TokenStore
	secret   []byte
	validity time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	current *backend.User
	events  backend.AuthEvents
}

func New(repo Repository, tokens TokenStore, secret []byte, validity time.Duration, logger logging.Logger) *Authenticator {
	return &Authenticator{
		repo:     repo,
		tokens:   tokens,
		secret:   secret,
		validity: validity,
		logger:   logger,
	}
}

// Restore signs in the user of a previously stored token. A missing,
// expired or unknown token leaves the client signed out and is not an
// error.
func (a *Authenticator) Restore(ctx context.Context) error {
	raw, err := a.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading auth token: %w", err)
	}
	if raw == nil {
		return nil
	}

	id, err := UserIDFromToken(string(raw), a.secret)
	if err != nil {
		a.logger.Info(ctx, "stored auth token rejected", "error", err)
		return a.tokens.Clear(ctx)
	}

	rec, err := a.repo.GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		a.logger.Warn(ctx, "stored auth token names unknown user", "user_id", id)
		return a.tokens.Clear(ctx)
	}
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	a.setCurrent(toUser(rec))
	return nil
}

func (a *Authenticator) CreateAccount(ctx context.Context, email, password string) (*backend.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, common.ErrInvalidRequest
	}

	salt, verifier := cryptox.HashPassword([]byte(password))
	rec := &User{
		ID:       uuid.NewString(),
		Email:    email,
		Salt:     salt,
		Verifier: verifier,
	}
	if err := a.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	return a.startSession(ctx, rec)
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*backend.User, error) {
	rec, err := a.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if !cryptox.CheckPassword([]byte(password), rec.Salt, rec.Verifier) {
		return nil, common.ErrUnauthorized
	}

	return a.startSession(ctx, rec)
}

func (a *Authenticator) SignOut(ctx context.Context) error {
	if err := a.tokens.Clear(ctx); err != nil {
		a.logger.Error(ctx, "failed to clear auth token", "error", err)
	}

	a.mu.Lock()
	wasSignedIn := a.current != nil
	a.current = nil
	a.mu.Unlock()

	if wasSignedIn {
		a.events.Emit(nil)
	}
	return nil
}

func (a *Authenticator) UpdateCurrentUser(ctx context.Context, upd backend.UserUpdate) error {
	a.mu.Lock()
	cur := a.current.Clone()
	a.mu.Unlock()

	if cur == nil {
		return common.ErrUnauthorized
	}

	if err := a.repo.UpdateProfile(ctx, cur.ID, upd.DisplayName, upd.PhotoURL); err != nil {
		return err
	}

	a.mu.Lock()
	if a.current != nil && a.current.ID == cur.ID {
		if upd.DisplayName != nil {
			a.current.DisplayName = *upd.DisplayName
		}
		if upd.PhotoURL != nil {
			a.current.PhotoURL = *upd.PhotoURL
		}
	}
	a.mu.Unlock()
	return nil
}

func (a *Authenticator) OnAuthStateChanged(fn func(*backend.User)) func() {
	unsubscribe := a.events.Subscribe(fn)

	a.mu.Lock()
	cur := a.current.Clone()
	a.mu.Unlock()

	fn(cur)
	return unsubscribe
}

func (a *Authenticator) startSession(ctx context.Context, rec *User) (*backend.User, error) {
	token, err := GenerateToken(rec.ID, a.secret, a.validity)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	if err := a.tokens.Save(ctx, []byte(token)); err != nil {
		a.logger.Error(ctx, "failed to save auth token", "user_id", rec.ID, "error", err)
	}

	u := toUser(rec)
	a.setCurrent(u)
	return u.Clone(), nil
}

func (a *Authenticator) setCurrent(u *backend.User) {
	a.mu.Lock()
	a.current = u
	a.mu.Unlock()

	a.events.Emit(u)
}

func toUser(rec *User) *backend.User {
	return &backend.User{
		ID:          rec.ID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
	}
}
