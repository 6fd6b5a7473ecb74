// Package metrics exposes booking totals read from the store on every scrape,
// so numbers written by short-lived commands show up on the serving process.
package metrics

import (
	"context"
	"time"

	"venuebook/internal/model"
	"venuebook/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const namespace = "venuebook"

// Source loads the current bookings and booking log.
type Source func(ctx context.Context) (store.Snapshot, error)

var (
	submittedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "requests_submitted_total"),
		"Count of booking requests recorded in the booking log.",
		nil, nil,
	)
	decisionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "decisions_total"),
		"Count of administrator decisions recorded in the booking log.",
		[]string{"decision"}, nil,
	)
	bookingsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bookings"),
		"Stored bookings by status.",
		[]string{"status"}, nil,
	)
	conflictsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "conflicting_bookings"),
		"Active bookings overlapping another active booking on the same venue and date.",
		nil, nil,
	)
	venuesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_venues"),
		"Active venues in the loaded catalog.",
		nil, nil,
	)
)

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source  Source
	venues  func() int
	timeout time.Duration
	logger  zerolog.Logger
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector reads source on every scrape. venues may be nil.
func NewCollector(source Source, venues func() int, logger *zerolog.Logger) *Collector {
	c := &Collector{source: source, venues: venues, timeout: 5 * time.Second, logger: zerolog.Nop()}
	if logger != nil {
		c.logger = logger.With().Str("component", "metrics").Logger()
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- submittedDesc
	ch <- decisionsDesc
	ch <- bookingsDesc
	ch <- conflictsDesc
	ch <- venuesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.venues != nil {
		ch <- prometheus.MustNewConstMetric(venuesDesc, prometheus.GaugeValue, float64(c.venues()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	snap, err := c.source(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load bookings for metrics")
		ch <- prometheus.NewInvalidMetric(submittedDesc, err)
		return
	}

	submitted := 0
	decisions := map[string]int{model.StatusApproved.String(): 0, model.StatusRejected.String(): 0}
	for _, e := range snap.Logs {
		switch e.Status {
		case model.LogSubmitted:
			submitted++
		case model.StatusApproved.String(), model.StatusRejected.String():
			decisions[e.Status]++
		}
	}
	ch <- prometheus.MustNewConstMetric(submittedDesc, prometheus.CounterValue, float64(submitted))
	for decision, n := range decisions {
		ch <- prometheus.MustNewConstMetric(decisionsDesc, prometheus.CounterValue, float64(n), decision)
	}

	byStatus := map[model.Status]int{model.StatusPending: 0, model.StatusApproved: 0, model.StatusRejected: 0}
	for i := range snap.Bookings {
		byStatus[snap.Bookings[i].Status]++
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(bookingsDesc, prometheus.GaugeValue, float64(n), status.String())
	}

	ch <- prometheus.MustNewConstMetric(conflictsDesc, prometheus.GaugeValue, float64(CountConflicting(snap.Bookings)))
}

// CountConflicting returns how many active bookings overlap at least one other
// active booking on the same venue and date.
func CountConflicting(bookings []model.Booking) int {
	type key struct{ venue, date string }
	type entry struct {
		slot model.TimeSlot
		hit  bool
	}
	groups := make(map[key][]*entry)
	for i := range bookings {
		b := &bookings[i]
		if !b.Status.IsActive() {
			continue
		}
		slot, err := b.Slot()
		if err != nil {
			continue
		}
		k := key{b.Venue, b.Date}
		groups[k] = append(groups[k], &entry{slot: slot})
	}

	n := 0
	for _, group := range groups {
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				if group[i].slot.Overlaps(group[j].slot) {
					group[i].hit, group[j].hit = true, true
				}
			}
		}
		for _, e := range group {
			if e.hit {
				n++
			}
		}
	}
	return n
}
