package testutil

import (
	"context"
	"testing"

	"animlib/internal/animlib"
	"animlib/internal/database"
)

// NewTestDatabase opens a migrated in-memory database. The database is
// automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	return NewTestDatabaseWithClock(t, FixedClock())
}

// NewTestDatabaseWithClock is NewTestDatabase with a caller-supplied clock.
func NewTestDatabaseWithClock(t *testing.T, clock animlib.Clock) *database.Database {
	t.Helper()

	db, err := database.Open(context.Background(), database.MemoryPath, database.Options{Clock: clock})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
