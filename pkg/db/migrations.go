package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one journal schema file. Name is the file name without
// the .sql extension, e.g. "0001_status_events".
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations reads the .sql files in dir in lexical order.
// Subdirectories and other extensions are ignored.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - read %s: %w", migrationsLogPrefix, name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			slog.Warn(fmt.Sprintf("%s - Skipping empty migration %s", migrationsLogPrefix, name))
			continue
		}
		migrations = append(migrations, Migration{
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			SQL:  string(data),
		})
	}
	slog.Debug(fmt.Sprintf("%s - Loaded %d journal migrations from %s", migrationsLogPrefix, len(migrations), dir))
	return migrations, nil
}
