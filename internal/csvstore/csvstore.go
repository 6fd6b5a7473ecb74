// Package csvstore persists bookings in two CSV tables: the bookings table,
// rewritten on every commit, and the append-only booking log.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"venuebook/internal/filelock"
	"venuebook/internal/model"
	"venuebook/internal/store"

	"github.com/rs/zerolog"
)

// ErrLocked is returned when another process holds the data files.
var ErrLocked = filelock.ErrLocked

// Backend implements store.Backend on CSV files.
type Backend struct {
	bookingsPath string
	logPath      string
	lock         *filelock.Lock
	lockWait     time.Duration
	logger       zerolog.Logger

	bookings []model.Booking
	index    map[int64]int
}

var _ store.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLockWait makes Open wait up to d for another process to release the files.
func WithLockWait(d time.Duration) Option {
	return func(b *Backend) { b.lockWait = d }
}

// Open takes the single-writer lock and makes sure both tables exist with a header row.
func Open(bookingsPath, logPath string, logger *zerolog.Logger, opts ...Option) (*Backend, error) {
	b := &Backend{
		bookingsPath: bookingsPath,
		logPath:      logPath,
		logger:       zerolog.Nop(),
		index:        make(map[int64]int),
	}
	if logger != nil {
		b.logger = logger.With().Str("component", "csvstore").Logger()
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, p := range []string{bookingsPath, logPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	lock, err := filelock.Acquire(context.Background(), bookingsPath+".lock", b.lockWait, &b.logger)
	if err != nil {
		return nil, err
	}
	b.lock = lock

	if err := ensureTable(bookingsPath, model.BookingColumns); err != nil {
		b.unlock()
		return nil, err
	}
	if err := ensureTable(logPath, model.LogColumns); err != nil {
		b.unlock()
		return nil, err
	}
	return b, nil
}

func (b *Backend) unlock() {
	if err := b.lock.Release(); err != nil {
		b.logger.Error().Err(err).Str("path", b.lock.Path()).Msg("Failed to remove lock file")
	}
}

// ensureTable creates the file with a header row when it is missing or empty.
func ensureTable(path string, columns []string) error {
	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return writeFileAtomic(path, columns, nil)
}

// Load reads both tables.
func (b *Backend) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	err := readTable(b.bookingsPath, model.BookingColumns, func(row map[string]string) error {
		booking, err := model.ParseBookingRow(row)
		if err != nil {
			return err
		}
		snap.Bookings = append(snap.Bookings, booking)
		return nil
	})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read bookings table: %w", err)
	}

	err = readTable(b.logPath, model.LogColumns, func(row map[string]string) error {
		entry, err := model.ParseLogRow(row)
		if err != nil {
			return err
		}
		snap.Logs = append(snap.Logs, entry)
		return nil
	})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read log table: %w", err)
	}

	b.bookings = make([]model.Booking, len(snap.Bookings))
	b.index = make(map[int64]int, len(snap.Bookings))
	for i, booking := range snap.Bookings {
		b.bookings[i] = booking.Clone()
		b.index[booking.ID] = i
	}

	b.logger.Debug().Int("bookings", len(snap.Bookings)).Int("logs", len(snap.Logs)).Msg("Tables loaded")
	return snap, nil
}

func readTable(path string, columns []string, fn func(map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	for _, col := range columns {
		if !present[col] {
			return fmt.Errorf("missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(model.RowMap(header, record)); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// Commit appends new log rows and rewrites the bookings table with the changes applied.
// Either both files change or neither does.
func (b *Backend) Commit(ctx context.Context, changes store.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bookings := append([]model.Booking(nil), b.bookings...)
	index := make(map[int64]int, len(b.index)+len(changes.Bookings))
	for id, i := range b.index {
		index[id] = i
	}
	for _, changed := range changes.Bookings {
		if i, ok := index[changed.ID]; ok {
			bookings[i] = changed.Clone()
			continue
		}
		index[changed.ID] = len(bookings)
		bookings = append(bookings, changed.Clone())
	}

	var tmp string
	if len(changes.Bookings) > 0 {
		rows := make([][]string, len(bookings))
		for i := range bookings {
			rows[i] = bookings[i].Row()
		}
		var err error
		if tmp, err = stageTable(b.bookingsPath, model.BookingColumns, rows); err != nil {
			return fmt.Errorf("write bookings table: %w", err)
		}
		defer os.Remove(tmp)
	}

	logSize := int64(-1)
	if len(changes.Logs) > 0 {
		info, err := os.Stat(b.logPath)
		if err != nil {
			return fmt.Errorf("append booking log: %w", err)
		}
		if err := appendLog(b.logPath, changes.Logs); err != nil {
			b.truncateLog(info.Size())
			return fmt.Errorf("append booking log: %w", err)
		}
		logSize = info.Size()
	}

	if tmp != "" {
		if err := os.Rename(tmp, b.bookingsPath); err != nil {
			if logSize >= 0 {
				b.truncateLog(logSize)
			}
			return fmt.Errorf("write bookings table: %w", err)
		}
	}

	b.bookings = bookings
	b.index = index
	return nil
}

// truncateLog drops rows appended by a commit that did not complete.
func (b *Backend) truncateLog(size int64) {
	if err := os.Truncate(b.logPath, size); err != nil {
		b.logger.Error().Err(err).Str("path", b.logPath).Int64("size", size).Msg("Failed to roll back booking log")
	}
}

func appendLog(path string, entries []model.LogEntry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	for i := range entries {
		if err := w.Write(entries[i].Row()); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeFileAtomic writes header and rows to a temp file and renames it over path.
func writeFileAtomic(path string, header []string, rows [][]string) error {
	tmp, err := stageTable(path, header, rows)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Rename(tmp, path)
}

// stageTable writes header and rows to a synced temp file next to path and returns its name.
func stageTable(path string, header []string, rows [][]string) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err == nil {
		err = w.WriteAll(rows)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// Paths returns the files this backend writes.
func (b *Backend) Paths() []string {
	return []string{b.bookingsPath, b.logPath}
}

// Close releases the single-writer lock.
func (b *Backend) Close() error {
	b.unlock()
	return nil
}
