// Package migrations embeds the schema for each supported driver.
package migrations

import "embed"

// SqliteMigrations holds the SQLite schema files, applied in file name order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL schema files.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
