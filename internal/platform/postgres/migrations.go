package postgres

import "embed"

// Migrations holds the goose SQL migrations for the schema the stores in
// this package expect. The server applies them at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
