package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrations_JournalSchema(t *testing.T) {
	files, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - load repo migrations: %v", migrationsTestPrefix, err)
	}
	if len(files) != len(journalTables) {
		t.Fatalf("%s - got %d migrations, want one per journal table (%d)", migrationsTestPrefix, len(files), len(journalTables))
	}
	for i, table := range journalTables {
		if !strings.HasSuffix(files[i].Name, table) {
			t.Errorf("%s - migration %d is named %q, want suffix %q", migrationsTestPrefix, i, files[i].Name, table)
		}
		if !strings.Contains(files[i].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("%s - migration %s does not create %s", migrationsTestPrefix, files[i].Name, table)
		}
	}
}

func TestLoadMigrations_OrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"0002_service_lifecycle.sql": "LIFECYCLE",
		"0001_status_events.sql":     "STATUS",
		"0003_status_index.sql":      "INDEX",
		"README.md":                  "# journal",
		"seed.json":                  "{}",
		"0004_blank.sql":             "  \n",
	})
	// A directory whose name ends in .sql is not a migration.
	if err := os.Mkdir(filepath.Join(dir, "0000_archive.sql"), 0o755); err != nil {
		t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
	}

	files, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	want := []Migration{
		{Name: "0001_status_events", SQL: "STATUS"},
		{Name: "0002_service_lifecycle", SQL: "LIFECYCLE"},
		{Name: "0003_status_index", SQL: "INDEX"},
	}
	if len(files) != len(want) {
		t.Fatalf("%s - got %d migrations, want %d", migrationsTestPrefix, len(files), len(want))
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("%s - migrations[%d] = %+v, want %+v", migrationsTestPrefix, i, files[i], want[i])
		}
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	files, err := LoadMigrations(t.TempDir())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(files) != 0 {
		t.Errorf("%s - expected no migrations, got %d", migrationsTestPrefix, len(files))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := LoadMigrations(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatalf("%s - expected error for missing directory", migrationsTestPrefix)
	}
	if !strings.Contains(err.Error(), migrationsLogPrefix) {
		t.Errorf("%s - error %q lacks log prefix", migrationsTestPrefix, err)
	}
}
