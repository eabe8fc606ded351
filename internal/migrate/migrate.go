// Package migrate applies schema migrations to a SQLite database.
//
// Migrations are SQL files in a folder called "migrations".
// They are applied once each in the alphabetical order of their file names
// and recorded in the table schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/ErikKalkoken/go-set"
)

// MigrateFS is a filesystem with migration files, e.g. an embed.FS.
type MigrateFS interface {
	fs.ReadDirFS
	fs.ReadFileFS
}

const createTrackingSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	id INTEGER PRIMARY KEY NOT NULL,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	name TEXT NOT NULL,
	UNIQUE (name)
);`

// Run applies all unapplied migrations and returns the names of the applied migrations.
// Each migration runs in its own transaction together with its record.
func Run(ctx context.Context, db *sql.DB, migrations MigrateFS) ([]string, error) {
	if _, err := db.ExecContext(ctx, createTrackingSQL); err != nil {
		return nil, fmt.Errorf("migrate: create tracking table: %w", err)
	}
	pending, err := Pending(ctx, db, migrations)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		slog.Debug("No new migrations to apply")
		return nil, nil
	}
	slog.Info("Applying new migrations", "count", len(pending))
	applied := make([]string, 0, len(pending))
	for _, name := range pending {
		if err := apply(ctx, db, migrations, name); err != nil {
			return applied, fmt.Errorf("migrate: %s: %w", name, err)
		}
		applied = append(applied, name)
		slog.Info("Applied migration", "name", name)
	}
	return applied, nil
}

// Pending returns the names of all migrations, which have not yet been applied, in order.
// The tracking table must exist.
func Pending(ctx context.Context, db *sql.DB, migrations MigrateFS) ([]string, error) {
	done, err := listApplied(ctx, db)
	if err != nil {
		return nil, err
	}
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".sql")
		if !ok || e.IsDir() || done.Contains(name) {
			continue
		}
		pending = append(pending, name)
	}
	slices.Sort(pending)
	return pending, nil
}

func apply(ctx context.Context, db *sql.DB, migrations MigrateFS, name string) error {
	data, err := migrations.ReadFile(path.Join("migrations", name+".sql")) // FS paths use slashes on all platforms
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name) VALUES(?);`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func listApplied(ctx context.Context, db *sql.DB) (set.Set[string], error) {
	var names set.Set[string]
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations;`)
	if err != nil {
		return names, err
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return names, err
		}
		names.Add(n)
	}
	return names, rows.Err()
}
