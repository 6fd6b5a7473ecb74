package config

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

const defaultWatchInterval = 30 * time.Second

// venueWatcher polls venues.yaml and reports every catalog that loads.
type venueWatcher struct {
	path     string
	logger   zerolog.Logger
	onUpdate func(*VenuesConfig)

	current *VenuesConfig
	seen    time.Time // modification time of the last version read, valid or not
}

// WatchVenues loads the catalog at path, passes it to onUpdate and then polls the
// file every interval until ctx is done. A rewrite that fails to load is logged
// and the previous catalog stays in effect until the file changes again.
func WatchVenues(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*VenuesConfig)) error {
	if path == "" {
		path = "configs/venues.yaml"
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	w := &venueWatcher{path: path, logger: zerolog.Nop(), onUpdate: onUpdate}
	if logger != nil {
		w.logger = logger.With().Str("component", "venues").Str("path", path).Logger()
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	cfg, err := LoadVenuesConfig(path)
	if err != nil {
		return err
	}
	w.seen = info.ModTime()
	w.apply(cfg)

	go w.run(ctx, interval)
	return nil
}

func (w *venueWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *venueWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Cannot stat venues file, keeping current catalog")
		return
	}
	if !info.ModTime().After(w.seen) {
		return
	}
	w.seen = info.ModTime()

	cfg, err := LoadVenuesConfig(w.path)
	if err != nil {
		w.logger.Error().Err(err).Int("venues", len(w.current.Venues)).Msg("Venues reload failed, keeping current catalog")
		return
	}
	w.apply(cfg)
}

func (w *venueWatcher) apply(cfg *VenuesConfig) {
	if w.current != nil {
		added, removed := diffVenues(w.current, cfg)
		w.logger.Info().
			Strs("added", added).
			Strs("removed", removed).
			Int("venues", len(cfg.Venues)).
			Msg("Venues reloaded")
	}
	w.current = cfg
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

// diffVenues returns the venue names present only in next and only in prev, sorted.
func diffVenues(prev, next *VenuesConfig) (added, removed []string) {
	before := make(map[string]bool, len(prev.Venues))
	for _, v := range prev.Venues {
		before[v.Name] = true
	}
	after := make(map[string]bool, len(next.Venues))
	for _, v := range next.Venues {
		after[v.Name] = true
		if !before[v.Name] {
			added = append(added, v.Name)
		}
	}
	for name := range before {
		if !after[name] {
			removed = append(removed, name)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}
