package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"trustgate/config"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "store.db"),
	}
	db, err := NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return db
}
