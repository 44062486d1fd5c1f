package testutil

import (
	"errors"
	"testing"

	"catalog-go/internal/catalog"
	"catalog-go/internal/database"
)

// NewTestDatabase creates a migrated in-memory SQLite database.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, clock catalog.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// ErrInjected is returned by FaultyDatabase for the failing method.
var ErrInjected = errors.New("injected failure")

// FaultyDatabase wraps a Database and fails one method by name, for
// exercising partially applied multi-step operations.
type FaultyDatabase struct {
	catalog.Database
	FailOn string
}

func (f *FaultyDatabase) DeleteCategory(id string) error {
	if f.FailOn == "DeleteCategory" {
		return ErrInjected
	}
	return f.Database.DeleteCategory(id)
}

func (f *FaultyDatabase) DeleteProduct(id string) error {
	if f.FailOn == "DeleteProduct" {
		return ErrInjected
	}
	return f.Database.DeleteProduct(id)
}

func (f *FaultyDatabase) DeleteProductsUnder(path string) (int64, error) {
	if f.FailOn == "DeleteProductsUnder" {
		return 0, ErrInjected
	}
	return f.Database.DeleteProductsUnder(path)
}

func (f *FaultyDatabase) DeleteRecycleBinEntry(id string) error {
	if f.FailOn == "DeleteRecycleBinEntry" {
		return ErrInjected
	}
	return f.Database.DeleteRecycleBinEntry(id)
}
