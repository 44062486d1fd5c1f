package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"categories", "products", "product_paths", "permissions", "recycle_bin", "operations", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil || !strings.Contains(err.Error(), "needs migration") {
		t.Fatalf("CheckDBMigrationStatus() on fresh db = %v, want needs migration", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration = %v", err)
	}

	// A second run is a no-op.
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v", err)
	}
}

func TestVersion(t *testing.T) {
	db := openTestDB(t)

	v, dirty, err := Version(db)
	if err != nil || v != 0 || dirty {
		t.Fatalf("Version() on fresh db = %d, %v, %v", v, dirty, err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() failed: %v", err)
	}
	v, _, err = Version(db)
	if err != nil || v != latest {
		t.Errorf("Version() = %d, %v, want %d", v, err, latest)
	}
}

func TestSchema_Constraints(t *testing.T) {
	tests := []struct {
		name   string
		setup  []string
		insert string
	}{
		{
			name:   "category path unique",
			setup:  []string{`INSERT INTO categories (id, name, path, created_at, updated_at) VALUES ('c1', 'a', '/a', datetime('now'), datetime('now'))`},
			insert: `INSERT INTO categories (id, name, path, created_at, updated_at) VALUES ('c2', 'b', '/a', datetime('now'), datetime('now'))`,
		},
		{
			name:   "category name unique",
			setup:  []string{`INSERT INTO categories (id, name, path, created_at, updated_at) VALUES ('c1', 'a', '/a', datetime('now'), datetime('now'))`},
			insert: `INSERT INTO categories (id, name, path, created_at, updated_at) VALUES ('c2', 'a', '/b', datetime('now'), datetime('now'))`,
		},
		{
			name:   "product path needs product",
			insert: `INSERT INTO product_paths (product_id, position, path) VALUES ('missing', 0, '/a')`,
		},
		{
			name:   "one recycle bin entry per item",
			setup:  []string{`INSERT INTO recycle_bin (id, item_id, item_type, item_name, original_path, deleted_at, payload) VALUES ('e1', 'c1', 'category', 'a', '/a', datetime('now'), '{}')`},
			insert: `INSERT INTO recycle_bin (id, item_id, item_type, item_name, original_path, deleted_at, payload) VALUES ('e2', 'c1', 'category', 'a', '/a', datetime('now'), '{}')`,
		},
		{
			name:   "permission entity type checked",
			insert: `INSERT INTO permissions (entity_type, entity_id, allowed_principal_id) VALUES ('folder', 'x', 'u1')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			if err := MigrateUp(db); err != nil {
				t.Fatalf("MigrateUp() failed: %v", err)
			}
			for _, stmt := range tt.setup {
				if _, err := db.Exec(stmt); err != nil {
					t.Fatalf("setup failed: %v", err)
				}
			}
			if _, err := db.Exec(tt.insert); err == nil {
				t.Error("expected constraint violation, insert succeeded")
			}
		})
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
