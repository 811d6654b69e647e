package sandbox

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func migratedDB(t *testing.T, runs int) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sandbox.db")+"?_pragma=journal_mode(WAL)")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for i := 0; i < runs; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("migration run %d: %v", i+1, err)
		}
	}
	return db
}

func TestRunMigrations_RepeatableAndVersioned(t *testing.T) {
	db := migratedDB(t, 2)

	got, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != schemaVersion {
		t.Fatalf("schema version = %d, want %d", got, schemaVersion)
	}
	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != schemaVersion {
		t.Fatalf("schema_version has %d rows after a second run, want %d", rows, schemaVersion)
	}
}

func TestRunMigrations_Tables(t *testing.T) {
	db := migratedDB(t, 1)

	want := map[string]bool{
		"scopes": false, "integration_instances": false, "executions": false,
		"cases": false, "case_alerts": false, "case_comments": false,
		"tokens": false, "falcon_alerts": false, "schema_version": false,
	}
	rs, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			t.Fatal(err)
		}
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("table %s missing", name)
		}
	}
}

func TestGetSchemaVersion_NoRows(t *testing.T) {
	db := migratedDB(t, 0)
	if _, err := db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME, description TEXT)`); err != nil {
		t.Fatal(err)
	}
	got, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("schema version = %d, want 0", got)
	}
}
