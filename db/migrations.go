// Package db holds the schema migrations embedded into the binary.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the .sql files.
const MigrationsDir = "migrations"
