package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps sql.DB for the reservation store.
type DB struct {
	*sql.DB
	path string
	loc  *time.Location
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func createTables(db *sql.DB) error {
	queries := []string{
		// Singleton settings row
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			indoor_capacity INTEGER NOT NULL,
			indoor_max_party INTEGER NOT NULL,
			indoor_max_large INTEGER NOT NULL,
			indoor_max_very_large INTEGER NOT NULL,
			outdoor_capacity INTEGER NOT NULL,
			outdoor_max_party INTEGER NOT NULL,
			outdoor_max_large INTEGER NOT NULL,
			outdoor_max_very_large INTEGER NOT NULL,
			medium_min INTEGER NOT NULL,
			large_min INTEGER NOT NULL,
			very_large_min INTEGER NOT NULL,
			dwell_minutes INTEGER NOT NULL,
			reservations_enabled BOOLEAN NOT NULL DEFAULT 1,
			closed_message TEXT,
			min_lead_minutes INTEGER NOT NULL DEFAULT 15,
			unassigned_area TEXT NOT NULL DEFAULT 'indoor',
			calm_below REAL NOT NULL DEFAULT 0,
			busy_below REAL NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Weekly opening hours, weekday 0=Sunday
		`CREATE TABLE IF NOT EXISTS opening_hours (
			weekday INTEGER PRIMARY KEY CHECK (weekday BETWEEN 0 AND 6),
			is_open BOOLEAN NOT NULL DEFAULT 0,
			open_time TEXT,
			close_time TEXT,
			last_reservation TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Special days override the weekly rule
		`CREATE TABLE IF NOT EXISTS special_days (
			date TEXT PRIMARY KEY,
			is_open BOOLEAN NOT NULL DEFAULT 0,
			open_time TEXT,
			close_time TEXT,
			last_reservation TEXT,
			bookings_open_from TEXT,
			public_message TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS dining_tables (
			id INTEGER PRIMARY KEY,
			number TEXT UNIQUE NOT NULL,
			area TEXT NOT NULL CHECK (area IN ('indoor', 'outdoor')),
			seats INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			date TEXT NOT NULL,
			start_minute INTEGER NOT NULL,
			party_size INTEGER NOT NULL CHECK (party_size >= 1),
			preference TEXT NOT NULL DEFAULT 'none',
			area TEXT NOT NULL DEFAULT 'none',
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT,
			source TEXT NOT NULL DEFAULT 'online',
			dwell_minutes INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Weak relation: deleting a table drops the link, never the reservation.
		`CREATE TABLE IF NOT EXISTS reservation_tables (
			reservation_id INTEGER NOT NULL,
			table_id INTEGER NOT NULL,
			PRIMARY KEY (reservation_id, table_id),
			FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE,
			FOREIGN KEY (table_id) REFERENCES dining_tables(id) ON DELETE CASCADE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_reservations_date ON reservations(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservation_tables_table ON reservation_tables(table_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// withTx runs fn in a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
