// Package sqlite implements the event store on an embedded SQLite
// database. WAL mode plus a single writer connection gives the
// single-writer/multi-reader discipline the pipeline requires.
package sqlite

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DB wraps the SQLite connection with a write lock so appends and
// sweeps never interleave mid-statement while readers proceed.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the database and applies the schema.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS detection_events (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		class TEXT NOT NULL,
		confidence REAL NOT NULL,
		box_x INTEGER NOT NULL,
		box_y INTEGER NOT NULL,
		box_width INTEGER NOT NULL,
		box_height INTEGER NOT NULL,
		image_path TEXT NOT NULL DEFAULT '',
		alert_fired INTEGER NOT NULL DEFAULT 0,
		channels_notified TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON detection_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_class ON detection_events(class);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for repository use.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires the write lock.
func (db *DB) Lock() { db.mu.Lock() }

// Unlock releases the write lock.
func (db *DB) Unlock() { db.mu.Unlock() }

// RLock acquires a read lock.
func (db *DB) RLock() { db.mu.RLock() }

// RUnlock releases the read lock.
func (db *DB) RUnlock() { db.mu.RUnlock() }
