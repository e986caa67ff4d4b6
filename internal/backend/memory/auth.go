package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/google/uuid"
)

type account struct {
	user     backend.User
	salt     []byte
	verifier []byte
}

// Auth is an in-memory backend.Authenticator. Creating an account signs it
// in, as hosted auth services do. Listeners run synchronously on the
// caller's goroutine.
type Auth struct {
	mu      sync.Mutex
	byEmail map[string]*account
	current *account
	events  backend.AuthEvents
}

func NewAuth() *Auth {
	return &Auth{byEmail: make(map[string]*account)}
}

func (a *Auth) CreateAccount(ctx context.Context, email, password string) (*backend.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.ErrInvalidRequest
	}

	a.mu.Lock()
	if _, exists := a.byEmail[email]; exists {
		a.mu.Unlock()
		return nil, common.ErrEmailTaken
	}
	salt, verifier := cryptox.HashPassword([]byte(password))
	acc := &account{
		user:     backend.User{ID: uuid.NewString(), Email: email},
		salt:     salt,
		verifier: verifier,
	}
	a.byEmail[email] = acc
	a.mu.Unlock()

	return a.signIn(acc), nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*backend.User, error) {
	a.mu.Lock()
	acc, ok := a.byEmail[normalizeEmail(email)]
	a.mu.Unlock()

	if !ok || !cryptox.CheckPassword([]byte(password), acc.salt, acc.verifier) {
		return nil, common.ErrUnauthorized
	}
	return a.signIn(acc), nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	wasSignedIn := a.current != nil
	a.current = nil
	a.mu.Unlock()

	if wasSignedIn {
		a.events.Emit(nil)
	}
	return nil
}

func (a *Auth) UpdateCurrentUser(ctx context.Context, upd backend.UserUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return common.ErrUnauthorized
	}
	if upd.DisplayName != nil {
		a.current.user.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		a.current.user.PhotoURL = *upd.PhotoURL
	}
	return nil
}

// OnAuthStateChanged calls fn with the current user right away, then on
// every sign-in and sign-out.
func (a *Auth) OnAuthStateChanged(fn func(*backend.User)) func() {
	unsubscribe := a.events.Subscribe(fn)

	a.mu.Lock()
	cur := a.currentUser()
	a.mu.Unlock()

	fn(cur)
	return unsubscribe
}

func (a *Auth) signIn(acc *account) *backend.User {
	a.mu.Lock()
	a.current = acc
	u := a.currentUser()
	a.mu.Unlock()

	a.events.Emit(u)
	return u
}

// currentUser returns a copy of the signed-in user or nil. Caller holds a.mu.
func (a *Auth) currentUser() *backend.User {
	if a.current == nil {
		return nil
	}
	u := a.current.user
	return &u
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
