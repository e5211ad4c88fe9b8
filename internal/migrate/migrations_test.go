package migrate_test

import (
	"context"
	"testing"

	"taskroster/internal/db"
	"taskroster/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	got, err := migrate.Version(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if got != latest {
		t.Fatalf("schema version %d, want %d", got, latest)
	}
	for _, table := range []string{"tasks", "users", "pending_tasks", "events"} {
		var name string
		if err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
