package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests use a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Profile(ctx context.Context, userID string) error
	EditProfile(ctx context.Context) error
	Photo(ctx context.Context, file string) error
	Say(ctx context.Context, text string) error
	Public(ctx context.Context) error
	DM(ctx context.Context, userID, text string) error
	Chat(ctx context.Context, userID string) error
	Watch(ctx context.Context, userID string) error
	Unwatch(ctx context.Context, userID string) error
	Posts(ctx context.Context) error
	More(ctx context.Context) error
	Post(ctx context.Context) error
	Delete(ctx context.Context, postID string) error
}

// runREPL reads one command per line from reader and dispatches it to a.
// The loop ends on EOF, on "exit" or "quit", or when ctx is done.
//
//	Not logged in:
//	  help, register, login, exit
//
//	Logged in:
//	  whoami             show the session
//	  profile [id]       show a profile (own by default)
//	  edit               edit display name, bio and career
//	  photo <file>       upload an avatar
//	  say <text>         post to the public chat
//	  public             show recent public messages
//	  dm <id> <text>     send a private message
//	  chat <id>          show a private conversation
//	  watch [id]         print new public (or private) messages as they arrive
//	  unwatch [id]       stop watching
//	  posts | more       first or next page of the feed
//	  post               publish a post
//	  delete <id>        delete a post
//	  logout, exit
//
// Handler errors are printed and the loop continues. All output goes through
// printLine so it interleaves cleanly with asynchronous watch output.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, printLine func(args ...any)) {
	for {
		if ctx.Err() != nil {
			return
		}

		printLine(fmt.Sprintf("gophchat%s> ", prefixSpace(statusFn())))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printLine("Available commands: whoami, profile [id], edit, photo <file>, say <text>, public, " +
					"dm <id> <text>, chat <id>, watch [id], unwatch [id], posts, more, post, delete <id>, logout, exit")
			} else {
				printLine("Available commands: register, login, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "whoami":
			cmdErr = a.WhoAmI(ctx)

		case "profile":
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			cmdErr = a.Profile(ctx, id)

		case "edit":
			cmdErr = a.EditProfile(ctx)

		case "photo":
			if len(args) == 0 {
				printLine("Usage: photo <file>")
				continue
			}
			cmdErr = a.Photo(ctx, args[0])

		case "say":
			if len(args) == 0 {
				printLine("Usage: say <text>")
				continue
			}
			cmdErr = a.Say(ctx, strings.Join(args, " "))

		case "public":
			cmdErr = a.Public(ctx)

		case "dm":
			if len(args) < 2 {
				printLine("Usage: dm <user-id> <text>")
				continue
			}
			cmdErr = a.DM(ctx, args[0], strings.Join(args[1:], " "))

		case "chat":
			if len(args) == 0 {
				printLine("Usage: chat <user-id>")
				continue
			}
			cmdErr = a.Chat(ctx, args[0])

		case "watch", "unwatch":
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			if cmd == "watch" {
				cmdErr = a.Watch(ctx, id)
			} else {
				cmdErr = a.Unwatch(ctx, id)
			}

		case "posts":
			cmdErr = a.Posts(ctx)

		case "more":
			cmdErr = a.More(ctx)

		case "post":
			cmdErr = a.Post(ctx)

		case "delete":
			if len(args) == 0 {
				printLine("Usage: delete <post-id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0])

		case "exit", "quit":
			printLine("Bye!")
			return

		default:
			printLine("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printLine("Error:", cmdErr)
		}
	}
}

func prefixSpace(s string) string {
	if s == "" {
		return ""
	}
	return " " + s
}
