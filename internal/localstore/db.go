// Package localstore keeps client-side state in a SQLite file: the cached
// session identity and the auth token. Values are opaque bytes in a
// key/value metadata table.
package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/gophchat/internal/localstore/migrations"
)

const (
	// KeyUser holds the JSON identity snapshot.
	KeyUser = "user"
	// KeyAuthToken holds the session token of the Postgres authenticator.
	KeyAuthToken = "auth_token"
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating local store: %w", err)
	}

	return db, nil
}
