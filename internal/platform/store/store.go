// Package store implements the embedded local document store backing the
// offline-first POS core. Each entity kind lives in its own SQLite table
// holding the full JSON document plus extracted columns for indexing.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (PRAGMA user_version):
// 0 - initial schema
// 1 - unique sync-identity indexes on stock_movements.id and credit_payments.id
// 2 - index on sales.customer_id for credit settlement lookups
const currentSchemaVersion = 2

// Store provides durable, transactional storage for POS entities.
// SQLite runs in WAL mode with a single writer connection.
type Store struct {
	db     *sql.DB
	broker *Broker
}

// Open creates or opens the database at path, applies pragmas and runs
// migrations. Safe to call repeatedly on the same file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY on overlapping mutations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, broker: NewBroker()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Broker exposes the change notification registry used by live queries.
func (s *Store) Broker() *Broker {
	return s.broker
}

// Subscribe registers a change subscription for the given tables
// (all tables when none are named).
func (s *Store) Subscribe(tables ...string) *Subscription {
	return s.broker.Subscribe(tables...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("store: %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental, strictly additive migrations keyed
// off user_version. Existing columns and rows are never dropped.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("store: get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
		version = 2
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("store: set user_version: %w", err)
	}
	return nil
}

// migrateToV1 enforces uniqueness of the stable sync identity on the two
// tables that use a local auto-increment primary key. New databases get
// these from schema.sql; databases created before v1 need them added.
func migrateToV1(db *sql.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_movements_id ON stock_movements(id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_payments_id ON credit_payments(id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate to v1: %w", err)
		}
	}
	return nil
}

// migrateToV2 speeds up per-customer unpaid sale lookups.
func migrateToV2(db *sql.DB) error {
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sales_customer_id ON sales(customer_id)`); err != nil {
		return fmt.Errorf("store: migrate to v2: %w", err)
	}
	return nil
}

// schemaVersion reports the current user_version. Used by tests.
func (s *Store) schemaVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
