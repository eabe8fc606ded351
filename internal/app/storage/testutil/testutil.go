// Package testutil provides helpers for tests which need a database.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
)

// New creates and returns a database in memory for tests.
// The database has a single connection, which is shared by reads and writes.
func New() (*sql.DB, *storage.Storage, Factory) {
	db, err := sql.Open("sqlite3", "file::memory:?_fk=on")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.ApplyMigrations(db); err != nil {
		panic(err)
	}
	st := storage.New(db, db)
	factory := NewFactory(st, db)
	return db, st, factory
}

// NewDBOnDisk creates and returns a new database on disk for tests.
// The caller is responsible for deleting the file when the tests have concluded.
func NewDBOnDisk(path string) (*sql.DB, *storage.Storage, Factory) {
	p := filepath.Join(path, "structurewatch_test.sqlite")
	dbRW, dbRO, err := storage.InitDB("file:" + p)
	if err != nil {
		panic(err)
	}
	st := storage.New(dbRW, dbRO)
	factory := NewFactory(st, dbRO)
	return dbRW, st, factory
}

// TruncateTables will purge data from all tables. This is meant for tests.
func TruncateTables(db *sql.DB) {
	if _, err := db.Exec("PRAGMA foreign_keys = 0"); err != nil {
		panic(err)
	}
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT IN ('schema_migrations', 'sqlite_sequence');`)
	if err != nil {
		panic(err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			panic(err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	for _, n := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s;", n)); err != nil {
			panic(err)
		}
		if _, err := db.Exec("DELETE FROM sqlite_sequence WHERE name = ?;", n); err != nil {
			panic(err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys = 1"); err != nil {
		panic(err)
	}
}
