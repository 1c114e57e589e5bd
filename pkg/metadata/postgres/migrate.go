package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/s3ql/main/internal/logger"
	"github.com/s3ql/main/pkg/metadata/postgres/migrations"
)

// RunMigrations brings the objects/blocks/inode_blocks schema up to date.
// Uses golang-migrate's Postgres advisory locks so that multiple processes
// starting concurrently don't race on DDL, the same guarantee the teacher's
// pkg/store/metadata/postgres/migrate.go relies on.
func RunMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("metadata/postgres: open for migration: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("metadata/postgres: ping for migration: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "s3ql",
	})
	if err != nil {
		return fmt.Errorf("metadata/postgres: build driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("metadata/postgres: build migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("metadata/postgres: build migrate instance: %w", err)
	}

	logger.Info("running metadata schema migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("metadata/postgres: migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("metadata/postgres: read version: %w", err)
	}
	if dirty {
		logger.Warn("metadata schema is in a dirty state", "version", version)
	} else {
		logger.Info("metadata schema up to date", "version", version)
	}
	return nil
}
