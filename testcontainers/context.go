// Package testcontainers manages throwaway PostgreSQL and Redis
// containers for integration tests, including schema setup and
// cleanup.
//
// Usage:
//
//	func TestRepository(t *testing.T) {
//	    testcontainers.WithTestContext(t, func(ctx *TestContext) {
//	        // ctx.DB is migrated and ready
//	    })
//	}
//
// Docker must be installed and running.
package testcontainers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notewire/integrations/postgres"
)

const defaultTimeout = 60 * time.Second

// TestContext bundles the containers and ready-to-use clients for a
// single test.
type TestContext struct {
	t *testing.T

	DB    *sql.DB
	Redis *redis.Client

	pg  *PostgresContainer
	rd  *RedisContainer
	ctx context.Context
}

// NewTestContext starts both containers, applies the schema
// migrations and returns connected clients. The caller must call
// Cleanup.
func NewTestContext(t *testing.T, migrationsDir string) *TestContext {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	t.Cleanup(cancel)

	pg, err := NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	rd, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}

	db, err := sql.Open("pgx", pg.GetDSN())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("pinging database: %v", err)
	}

	if migrationsDir != "" {
		m := postgres.NewMigrationRunner(pg.GetDSN(), zap.NewNop())
		if err := m.SetMigrationsDir(migrationsDir); err != nil {
			t.Fatalf("locating migrations: %v", err)
		}

		if err := m.RunMigrations(); err != nil {
			t.Fatalf("running migrations: %v", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: rd.GetAddress()})

	return &TestContext{
		t:     t,
		DB:    db,
		Redis: rdb,
		pg:    pg,
		rd:    rd,
		ctx:   context.Background(),
	}
}

// Cleanup closes the clients and terminates the containers.
func (tc *TestContext) Cleanup() {
	tc.t.Helper()

	if tc.Redis != nil {
		_ = tc.Redis.Close()
	}

	if tc.DB != nil {
		_ = tc.DB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if tc.pg != nil {
		_ = tc.pg.Terminate(ctx)
	}

	if tc.rd != nil {
		_ = tc.rd.Terminate(ctx)
	}
}

// WithTestContext runs fn inside a fully provisioned test context and
// cleans up afterwards. The test is skipped in short mode.
func WithTestContext(t *testing.T, migrationsDir string, fn func(*TestContext)) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestContext(t, migrationsDir)
	defer tc.Cleanup()

	fn(tc)
}
