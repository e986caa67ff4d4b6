// Package cli provides the interactive gophchat terminal client.
//
// It wires configuration, local storage, the selected backend and the
// services into a read-eval-print loop. The session line in the prompt
// follows the session store, so a profile that finishes loading in the
// background shows up on the next prompt.
//
// Commands:
//   - register / login / logout / whoami
//   - profile [user-id], edit, photo <file>
//   - say <text>, public, watch, unwatch
//   - dm <user-id> <text>, chat <user-id>, watch <user-id>
//   - posts, more, post, delete <post-id>
//
// The REPL is started via App.Run(ctx, in), which blocks until the user
// exits or the input ends.
package cli
