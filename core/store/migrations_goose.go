package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"trustgate/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations_pg/*.sql
var migrationsPgFS embed.FS

//go:embed migrations_sqlite/*.sql
var migrationsSqliteFS embed.FS

// ApplyMigrations brings the schema up to date for the configured backend.
// Safe to run concurrently with request handling only on first boot; callers
// run it before the server starts.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string, logger *utils.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	var dialect, dir string
	var fsys embed.FS
	switch driver {
	case "postgres", "pg":
		dialect, dir, fsys = "postgres", "migrations_pg", migrationsPgFS
	case "sqlite":
		dialect, dir, fsys = "sqlite3", "migrations_sqlite", migrationsSqliteFS
	default:
		return fmt.Errorf("unsupported driver for migrations: %s", driver)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)
	if logger != nil {
		logger.Printf("applying goose migrations (%s)", dialect)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("goose migrations applied")
	}
	return nil
}
