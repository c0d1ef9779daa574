package notification

import "embed"

// Migrations holds the PostgreSQL schema, applied with database.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
