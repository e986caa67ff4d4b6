package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/chat"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/posts"
	"github.com/dmitrijs2005/gophchat/internal/profile"
	"github.com/dmitrijs2005/gophchat/internal/session"
)

// historyTimeout bounds the wait for the first realtime delivery when a
// command prints chat history.
const historyTimeout = 5 * time.Second

type AccountService interface {
	Register(ctx context.Context, email, password string) (session.Snapshot, error)
	Login(ctx context.Context, email, password string) (session.Snapshot, error)
	Logout(ctx context.Context) error
	EditProfile(ctx context.Context, displayName, bio, career string) error
	EditPhoto(ctx context.Context, r io.Reader, contentType string) error
}

type ProfileService interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
}

type SessionView interface {
	Current() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (cancel func())
}

type PublicChat interface {
	Send(ctx context.Context, m chat.Message) (string, error)
	Subscribe(ctx context.Context, fn func([]chat.Message)) (cancel func(), err error)
}

type PrivateChat interface {
	Send(ctx context.Context, senderID, receiverID, text string) (string, error)
	Subscribe(ctx context.Context, senderID, receiverID string, fn func([]chat.Message)) (cancel func(), err error)
}

type Feed interface {
	Create(ctx context.Context, p posts.Post) (string, error)
	Fetch(ctx context.Context) ([]posts.Post, error)
	FetchFrom(ctx context.Context, createdAt time.Time) ([]posts.Post, error)
	Delete(ctx context.Context, id string) error
}

// Services is everything the REPL talks to.
type Services struct {
	Accounts AccountService
	Profiles ProfileService
	Session  SessionView
	Public   PublicChat
	Private  PrivateChat
	Feed     Feed
}

type App struct {
	accounts AccountService
	profiles ProfileService
	session  SessionView
	public   PublicChat
	private  PrivateChat
	feed     Feed
	logger   logging.Logger

	reader *bufio.Reader
	outMu  sync.Mutex
	out    io.Writer

	mu      sync.Mutex
	watches map[string]func()
	cursor  time.Time
	closers []func() error
}

func newApp(s Services, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		accounts: s.Accounts,
		profiles: s.Profiles,
		session:  s.Session,
		public:   s.Public,
		private:  s.Private,
		feed:     s.Feed,
		logger:   logger,
		reader:   bufio.NewReader(in),
		out:      out,
		watches:  make(map[string]func()),
	}
}

// Run starts the REPL on the app's input and blocks until the user exits.
// Watches and backend resources are released on return.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	stop := a.watchSession(ctx)
	defer stop()

	a.println("Welcome to gophchat (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.println)
}

// Close cancels every watch and closes the backends in reverse order.
func (a *App) Close() {
	a.mu.Lock()
	watches := a.watches
	a.watches = make(map[string]func())
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for _, cancel := range watches {
		cancel()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.logger.Warn(context.Background(), "closing backend", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.Current().ID != ""
}

func (a *App) getStatus() string {
	cur := a.session.Current()
	if cur.ID == "" {
		return ""
	}
	name := cur.Email
	if cur.DisplayName != "" {
		name = cur.DisplayName
	}
	return fmt.Sprintf("(%s %s)", name, cur.State)
}

// watchSession reports state transitions that happen in the background,
// such as a profile finishing loading after sign-in.
func (a *App) watchSession(ctx context.Context) func() {
	var (
		mu     sync.Mutex
		last   session.State
		lastID string
		seen   bool
	)
	return a.session.Subscribe(func(s session.Snapshot) {
		mu.Lock()
		prev, prevID, first := last, lastID, !seen
		last, lastID, seen = s.State, s.ID, true
		mu.Unlock()

		if !first && prevID != "" && s.ID != prevID {
			a.dropWatches()
		}

		if first {
			if s.Rehydrated {
				a.println("Restored session for", s.Email)
			}
			return
		}
		if prev == s.State {
			return
		}

		switch s.State {
		case session.StateFullyLoaded:
			a.logger.Debug(ctx, "profile loaded", "user_id", s.ID)
		case session.StateError:
			a.println("Profile could not be loaded:", s.Err)
		case session.StateUnauthenticated:
			if prev != session.StateAuthenticating {
				a.println("Signed out")
			}
		}
	})
}

// dropWatches cancels every watch and forgets the feed cursor. Watches
// belong to the user that opened them.
func (a *App) dropWatches() {
	a.mu.Lock()
	watches := a.watches
	a.watches = make(map[string]func())
	a.cursor = time.Time{}
	a.mu.Unlock()

	for _, cancel := range watches {
		cancel()
	}
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
