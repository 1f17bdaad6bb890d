package main

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

// defaultMigrationsDir is where goose looks for SQL migrations unless
// overridden on the command line.
const defaultMigrationsDir = "internal/platform/postgres/migrations"

// runMigrations applies or rolls back schema migrations with goose.
// Supported commands: up, down, status, version.
func runMigrations(db *sql.DB, command, dir string) error {
	if dir == "" {
		dir = defaultMigrationsDir
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.Up(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		return goose.Version(db, dir)
	}
	return fmt.Errorf("unknown migration command %q", command)
}
