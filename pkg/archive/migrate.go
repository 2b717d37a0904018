package archive

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

type migrationFile struct {
	version int
	name    string
	sql     string
}

// migrateUp applies every embedded migration not yet recorded in
// schema_migrations, one transaction each.
func migrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("archive: ensure migrations table: %w", err)
	}

	files, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("archive: load migrations: %w", err)
	}

	for _, f := range files {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, f.version).Scan(&applied); err != nil {
			return fmt.Errorf("archive: check migration %d: %w", f.version, err)
		}
		if applied > 0 {
			continue
		}
		if err := applyMigration(db, f); err != nil {
			return fmt.Errorf("archive: apply %s: %w", f.name, err)
		}
	}
	return nil
}

func loadMigrations() ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(migrations, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		content, err := migrations.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var version int
		if _, err := fmt.Sscanf(d.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("bad migration name %s: %w", d.Name(), err)
		}
		files = append(files, migrationFile{version: version, name: d.Name(), sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func applyMigration(db *sql.DB, f migrationFile) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(f.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, f.version, f.name); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaVersion returns the highest applied migration, or 0.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
