package migrations

import "github.com/uptrace/bun/migrate"

// Migrations collects every schema and seed migration registered by this package.
var Migrations = migrate.NewMigrations()
