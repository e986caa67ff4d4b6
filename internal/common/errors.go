// Package common defines sentinel errors shared by the backend adapters and
// the client services of gophchat. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Backend-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("backend unavailable")

	// Auth errors.
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrEmailTaken     = errors.New("email already registered")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrInvalidRequest = errors.New("invalid request")
)
