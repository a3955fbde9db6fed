package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the postgres schema history applied by the migrate command.
var Migrations = migrate.NewMigrations()
