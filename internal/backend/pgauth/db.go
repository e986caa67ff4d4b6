// Package pgauth implements backend.Authenticator on a Postgres user table.
// Passwords are stored as an argon2 salt and verifier. A signed-in session
// is a JWT kept in local storage, so a restarted client can restore it.
package pgauth

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/gophchat/internal/backend/pgauth/migrations"
)

// Open connects to Postgres through the pgx driver and applies the schema
// migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}
