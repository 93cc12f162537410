// Package testutil opens throwaway Postgres schemas for adapter tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/migrations"
)

const envDSN = "TEST_DATABASE_URL"

// OpenMigratedPool creates a fresh schema, applies migrations into it and returns a pool bound
// to that schema. The schema is dropped when t finishes. Tests are skipped when TEST_DATABASE_URL
// is unset.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(envDSN)
	if dsn == "" {
		t.Skipf("%s not set; skipping postgres tests", envDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		t.Fatalf("open admin pool: %v", err)
	}
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA %s`, schema)); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 8, SearchPath: schema})
	if err != nil {
		admin.Close()
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer dropCancel()
		_, _ = admin.Exec(dropCtx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema))
		admin.Close()
	})

	if err := migrations.Up(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
