// Package dbtest gives repository tests a private, migrated schema on the
// Postgres server named by TEST_DATABASE_URL. Callers skip when it is unset.
package dbtest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/migrations"
)

const EnvURL = "TEST_DATABASE_URL"

// Pool creates a fresh schema, applies every migration to it and returns a
// pool whose search_path points there. The schema is dropped on cleanup.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set; skipping Postgres test", EnvURL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	admin, err := pgx.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect %s: %v", EnvURL, err)
	}
	// btree_gist must live in public so every test schema can see it.
	if _, err := admin.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS btree_gist SCHEMA public`); err != nil && !db.IsPgCode(err, db.CodeUniqueViolation) {
		t.Fatalf("create btree_gist: %v", err)
	}
	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvURL, err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema + ",public"
	cfg.MaxConns = 8
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := admin.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close(ctx)
	})

	if _, err := db.NewMigrator(pool, migrations.Files).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
