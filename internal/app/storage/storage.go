// Package storage contains the logic for storing application data into a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ErikKalkoken/structurewatch/internal/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Storage provides access to the database.
//
// Writes go through a connection pool with a single connection,
// reads through a separate read-only pool.
type Storage struct {
	dbRO *sql.DB
	dbRW *sql.DB
}

// New returns a new storage object.
func New(dbRW *sql.DB, dbRO *sql.DB) *Storage {
	st := &Storage{
		dbRO: dbRO,
		dbRW: dbRW,
	}
	return st
}

// InitDB initializes the database and returns a read-write and a read-only connection pool.
// It applies all outstanding migrations.
func InitDB(dsn string) (*sql.DB, *sql.DB, error) {
	dbRW, err := connect(dsn, false)
	if err != nil {
		return nil, nil, fmt.Errorf("open RW database %s: %w", dsn, err)
	}
	dbRW.SetMaxOpenConns(1)
	if err := ApplyMigrations(dbRW); err != nil {
		dbRW.Close()
		return nil, nil, err
	}
	dbRO, err := connect(dsn, true)
	if err != nil {
		dbRW.Close()
		return nil, nil, fmt.Errorf("open RO database %s: %w", dsn, err)
	}
	return dbRW, dbRO, nil
}

func connect(dsn string, readOnly bool) (*sql.DB, error) {
	v := url.Values{}
	v.Add("_fk", "on")
	v.Add("_journal_mode", "WAL")
	v.Add("_synchronous", "normal")
	v.Add("_busy_timeout", "5000")
	if readOnly {
		v.Add("mode", "ro")
	} else {
		v.Add("_txlock", "immediate")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn2 := dsn + sep + v.Encode()
	slog.Debug("Connecting to sqlite", "dsn", dsn2)
	db, err := sql.Open("sqlite3", dsn2)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Connected to database", "readOnly", readOnly)
	return db, nil
}

// ApplyMigrations applies all outstanding migrations to a database.
func ApplyMigrations(db *sql.DB) error {
	if _, err := migrate.Run(context.Background(), db, migrations); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
