package db

import "embed"

// MigrationFS embeds the account schema migrations. Used by internal/db/migrate and cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
