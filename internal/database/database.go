package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"venuebook/internal/filelock"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrLocked is returned when another process holds the database.
var ErrLocked = filelock.ErrLocked

// DB wraps sql.DB for the booking store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	lock   *filelock.Lock

	// known holds the ids already stored; Commit inserts anything else.
	known map[int64]bool
}

type options struct {
	lockWait time.Duration
}

// Option configures NewDB.
type Option func(*options)

// WithLockWait makes NewDB wait up to d for another process to release the database.
func WithLockWait(d time.Duration) Option {
	return func(o *options) { o.lockWait = d }
}

// NewDB takes the single-writer lock, opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	lock, err := filelock.Acquire(context.Background(), path+".lock", o.lockWait, logger)
	if err != nil {
		return nil, err
	}

	// WAL mode and a busy timeout; a single connection keeps the store the only writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger, lock: lock, known: make(map[int64]bool)}
	if err := instance.createTables(); err != nil {
		db.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY,
			club TEXT NOT NULL,
			event_name TEXT NOT NULL,
			contact_email TEXT,
			day TEXT,
			date TEXT NOT NULL,
			time_slot TEXT NOT NULL,
			venue TEXT NOT NULL,
			expected_attendance INTEGER NOT NULL,
			purpose TEXT,
			status TEXT NOT NULL DEFAULT 'Pending',
			submitted_at TEXT NOT NULL,
			processed_at TEXT,
			admin_comment TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS booking_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			club TEXT NOT NULL,
			venue TEXT NOT NULL,
			status TEXT NOT NULL,
			day TEXT,
			date TEXT,
			time_slot TEXT,
			event TEXT,
			admin_comment TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_venue_date ON bookings(venue, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_club ON bookings(club)`,
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

// Path returns the database file.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database and releases the lock.
func (db *DB) Close() error {
	return errors.Join(db.DB.Close(), db.lock.Release())
}
