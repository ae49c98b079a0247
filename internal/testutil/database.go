package testutil

import (
	"testing"

	"sniff-go/internal/database"
)

// NewTestDatabase creates a migrated in-memory index that is closed when the
// test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
