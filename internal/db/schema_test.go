package db

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ROWSYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set ROWSYNC_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	database, err := Open(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := EnsureSchema(ctx, database); err != nil {
			t.Fatalf("ensure schema (run %d): %v", i+1, err)
		}
	}

	err = database.Transact(ctx, func(ex Executor) error {
		var version string
		return ex.QueryRowContext(ctx,
			`select value from sync_meta where key = 'schemaVersion'`).Scan(&version)
	})
	if err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
}
