package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"venuebook/internal/audit"
	"venuebook/internal/config"
	"venuebook/internal/csvstore"
	"venuebook/internal/database"
	"venuebook/internal/events"
	"venuebook/internal/lifecycle"
	"venuebook/internal/store"

	"github.com/rs/zerolog"
)

// lockWait bounds how long a command waits for another process to finish with the data files.
const lockWait = 2 * time.Second

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	bus    *events.Bus
	venues atomic.Pointer[config.VenuesConfig]

	// Set by openStore; nil for commands that only touch the data files briefly.
	store     *store.Store
	db        *database.DB
	lifecycle *lifecycle.Service
}

func openApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(logOut, cfg.Logging.Level, cfg.Logging.Console)

	venues, err := loadVenues(cfg.VenuesFile, &logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: &logger, bus: events.NewBus(&logger)}
	a.venues.Store(venues)
	subscribeEventLog(a.bus, a.logger)
	return a, nil
}

func loadVenues(path string, logger *zerolog.Logger) (*config.VenuesConfig, error) {
	venues, err := config.LoadVenuesConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", path).Msg("Venues file not found, using built-in catalog")
		return config.DefaultVenues(), nil
	}
	return venues, err
}

// openBackend takes the data lock and opens the configured backend.
func (a *app) openBackend() (store.Backend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := database.NewDB(a.cfg.Storage.SQLitePath, a.logger, database.WithLockWait(lockWait))
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverCSV:
		b, err := csvstore.Open(a.cfg.Storage.BookingsFile, a.cfg.Storage.LogFile, a.logger, csvstore.WithLockWait(lockWait))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

// openStore loads the bookings and wires the lifecycle service. The data lock is
// held until Close.
func (a *app) openStore(ctx context.Context) error {
	backend, err := a.openBackend()
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, backend,
		store.WithLogger(a.logger),
		store.WithReprocessing(a.cfg.Lifecycle.AllowReprocess),
	)
	if err != nil {
		_ = backend.Close()
		return err
	}

	a.store = s
	a.db, _ = backend.(*database.DB)
	a.lifecycle = lifecycle.NewService(a.store, a.venues.Load(), a.bus, a.logger)
	return nil
}

// withBackend opens the backend for the duration of fn.
func (a *app) withBackend(fn func(store.Backend) error) error {
	backend, err := a.openBackend()
	if err != nil {
		return err
	}
	return errors.Join(fn(backend), backend.Close())
}

// snapshot reads the stored bookings and log without keeping the lock.
func (a *app) snapshot(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := a.withBackend(func(b store.Backend) error {
		var err error
		snap, err = b.Load(ctx)
		return err
	})
	return snap, err
}

func (a *app) setVenues(venues *config.VenuesConfig) {
	a.venues.Store(venues)
	if a.lifecycle != nil {
		a.lifecycle.SetCatalog(venues)
	}
}

// tables returns the audit source for the active backend.
func (a *app) tables() audit.TableExporter {
	if a.db != nil {
		return a.db
	}
	return audit.StoreTables{Source: a.store}
}

// backupService copies the data files while holding the data lock. It must not
// be used after openStore, which already holds the lock.
func (a *app) backupService() *database.BackupService {
	prepare := func(ctx context.Context) (func(), error) {
		backend, err := a.openBackend()
		if err != nil {
			return nil, err
		}
		if db, ok := backend.(*database.DB); ok {
			if err := db.Checkpoint(ctx); err != nil {
				_ = backend.Close()
				return nil, err
			}
		}
		return func() {
			if err := backend.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Failed to release data files after backup")
			}
		}, nil
	}
	return database.NewBackupService(a.cfg.DataFiles(), a.cfg.Backup, prepare, a.logger)
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
