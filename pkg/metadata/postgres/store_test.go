//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/s3ql/main/internal/metadatatest"
	"github.com/s3ql/main/pkg/metadata"
	"github.com/s3ql/main/pkg/metadata/postgres"
)

// TestPostgresConformance runs the shared metadata.Store conformance suite
// against a real Postgres instance, grounded on the teacher's
// pkg/metadata/store/postgres/postgres_conformance_test.go (env-var DSN
// signals the test to run; skipped otherwise since no Postgres is started
// for the regular test run).
func TestPostgresConformance(t *testing.T) {
	dsn := os.Getenv("S3QL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("S3QL_TEST_POSTGRES_DSN not set, skipping Postgres conformance tests")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	truncate := func(t *testing.T) {
		t.Helper()
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			t.Fatalf("connect for truncate: %v", err)
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, "TRUNCATE inode_blocks, blocks, objects RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate tables: %v", err)
		}
	}

	metadatatest.RunConformanceSuite(t, func() metadata.Store {
		truncate(t)
		store, err := postgres.New(ctx, postgres.Config{DSN: dsn})
		if err != nil {
			t.Fatalf("connect store: %v", err)
		}
		t.Cleanup(func() { store.Close(ctx) })
		return store
	})
}
