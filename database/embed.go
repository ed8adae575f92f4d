package database

import "embed"

// EmbeddedMigrations holds migrations/*.sql. Open reads them through
// fs.Sub(EmbeddedMigrations, "migrations").
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
