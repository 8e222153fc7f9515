// Package database provides the two persistent stores backing the simulator:
// the price cache (historical OHLCV bars) and the ledger (users, balances,
// holdings). Each store is an independent SQLite file that initializes its
// own schema on open.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/pricecache/*.sql migrations/ledger/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound indicates a point lookup matched no row.
	ErrNotFound = errors.New("database: not found")

	// ErrDuplicate indicates an insert violated a uniqueness constraint.
	ErrDuplicate = errors.New("database: duplicate")
)

// openSQLite opens (or creates) the SQLite file at path and applies the
// migrations found under migrationsDir.
func openSQLite(path, migrationsDir string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection plus the store-level mutex in withTx serializes
	// all access; SQLite allows only one writer at a time anyway.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if err := runMigrations(conn, migrationsDir); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// runMigrations applies the embedded migrations for one store. Running them
// again against an already-initialized file is a no-op, so every open is
// safe regardless of process history.
func runMigrations(conn *sql.DB, dir string) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// withTx runs fn inside a single transaction guarded by the store-level
// mutex. Commit happens only when fn returns nil; any error (or panic)
// rolls the transaction back. Every top-level operation against a store
// acquires exactly one of these scopes, which is the concurrency-safety
// mechanism protecting read-modify-write sequences.
func withTx(conn *sql.DB, mu *sync.Mutex, fn func(tx *sql.Tx) error) error {
	mu.Lock()
	defer mu.Unlock()

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
