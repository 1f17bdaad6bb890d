// Package main implements the popflow server: an AI role-play game
// backend with a durable job scheduler, a background task runtime, and a
// cache-backed session layer over an authoritative relational store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/lightlogic3/popflow/internal/config"
	"github.com/lightlogic3/popflow/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	migrationsDir := flag.String("migrations-dir", defaultMigrationsDir, "directory containing SQL migrations")
	flag.Parse()

	if err := run(*migrateCmd, *migrationsDir); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run(migrateCmd, migrationsDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("set up logger: %w", err)
	}

	if migrateCmd != "" {
		db, err := setupDatabase(cfg, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return runMigrations(db, migrateCmd, migrationsDir)
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	if err := app.start(ctx); err != nil {
		return err
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}
