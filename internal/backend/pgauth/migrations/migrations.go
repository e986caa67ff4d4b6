// Package migrations embeds the goose migrations of the auth_users schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
