package scan

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/speicherwald/speicherwald/internal/db"
)

// mustOpenStore opens a temp-file SQLite database with the full schema
// applied, returning both the raw handle (for assertions) and a Store.
func mustOpenStore(tb testing.TB) (*sql.DB, *db.Store) {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	conn, err := db.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := db.RunMigrations(conn); err != nil {
		conn.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { conn.Close() })
	return conn, db.NewStore(conn)
}
