package testutil

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/courtbook/courtbook/internal/db"
)

// NewTestDB creates a temporary SQLite database with the given migration set
// applied. Each service passes its own embedded migrations.
func NewTestDB(t *testing.T, migrations fs.FS, dir string) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, migrations, dir)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}
