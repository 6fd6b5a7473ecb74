package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VenueConfig describes one bookable venue.
type VenueConfig struct {
	Name        string       `yaml:"name"`
	Category    string       `yaml:"category"`
	Capacity    int          `yaml:"capacity"` // informational, never checked against attendance
	Description string       `yaml:"description,omitempty"`
	Disabled    bool         `yaml:"disabled,omitempty"`
	Hours       *HoursConfig `yaml:"hours,omitempty"`
}

// HoursConfig is the opening window used to list free slots.
type HoursConfig struct {
	Open                string `yaml:"open"`                  // "08:00"
	Close               string `yaml:"close"`                 // "22:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 60
}

// VenueDefaults holds settings applied to venues without their own.
type VenueDefaults struct {
	Hours *HoursConfig `yaml:"hours"`
}

// VenuesConfig is the root of venues.yaml.
type VenuesConfig struct {
	Venues   []VenueConfig `yaml:"venues"`
	Defaults VenueDefaults `yaml:"defaults"`
}

// Category groups venue names that share a category, in catalog order.
type Category struct {
	Name   string
	Venues []string
}

var defaultHours = HoursConfig{Open: "08:00", Close: "22:00", SlotDurationMinutes: 60}

// DefaultVenues returns the built-in campus catalog.
func DefaultVenues() *VenuesConfig {
	cfg := &VenuesConfig{
		Venues: []VenueConfig{
			{Name: "Auditorium", Category: "Auditorium", Capacity: 1000},
			{Name: "LT-1", Category: "Lecture Theatre", Capacity: 300},
			{Name: "LT-2", Category: "Lecture Theatre", Capacity: 250},
			{Name: "CR-1", Category: "Conference Room", Capacity: 100},
			{Name: "CR-2", Category: "Conference Room", Capacity: 50},
			{Name: "Sports Hall", Category: "Sports", Capacity: 500},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadVenuesConfig loads and validates the venue catalog from a YAML file.
func LoadVenuesConfig(path string) (*VenuesConfig, error) {
	if path == "" {
		path = "configs/venues.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues config: %w", err)
	}

	var cfg VenuesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse venues config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate venues config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *VenuesConfig) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("no venues defined")
	}

	names := make(map[string]bool)
	for i, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("venue[%d]: name is required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("venue[%d]: duplicate name '%s'", i, v.Name)
		}
		names[v.Name] = true

		if v.Category == "" {
			return fmt.Errorf("venue[%d]: category is required", i)
		}
		if v.Capacity < 0 {
			return fmt.Errorf("venue[%d]: capacity cannot be negative", i)
		}
		if v.Hours != nil {
			if err := validateHours(v.Hours, fmt.Sprintf("venue[%d].hours", i)); err != nil {
				return err
			}
		}
	}

	if c.Defaults.Hours != nil {
		if err := validateHours(c.Defaults.Hours, "defaults.hours"); err != nil {
			return err
		}
	}
	return nil
}

func validateHours(h *HoursConfig, prefix string) error {
	open, err := time.Parse("15:04", h.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, h.Open)
	}
	closing, err := time.Parse("15:04", h.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, h.Close)
	}
	if !closing.After(open) {
		return fmt.Errorf("%s: close must be after open", prefix)
	}
	if h.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%s.slot_duration_minutes must be positive", prefix)
	}
	return nil
}

func (c *VenuesConfig) applyDefaults() {
	hours := c.Defaults.Hours
	if hours == nil {
		h := defaultHours
		hours = &h
		c.Defaults.Hours = hours
	}
	for i := range c.Venues {
		if c.Venues[i].Hours == nil {
			c.Venues[i].Hours = hours
		}
	}
}

// GetVenue returns the venue with the given name, or nil.
func (c *VenuesConfig) GetVenue(name string) *VenueConfig {
	for i := range c.Venues {
		if c.Venues[i].Name == name {
			return &c.Venues[i]
		}
	}
	return nil
}

// GetActiveVenues returns venues that accept bookings.
func (c *VenuesConfig) GetActiveVenues() []VenueConfig {
	result := make([]VenueConfig, 0, len(c.Venues))
	for _, v := range c.Venues {
		if !v.Disabled {
			result = append(result, v)
		}
	}
	return result
}

// Categories groups active venues by category, preserving first-appearance order.
func (c *VenuesConfig) Categories() []Category {
	var result []Category
	index := make(map[string]int)
	for _, v := range c.GetActiveVenues() {
		i, ok := index[v.Category]
		if !ok {
			i = len(result)
			index[v.Category] = i
			result = append(result, Category{Name: v.Category})
		}
		result[i].Venues = append(result[i].Venues, v.Name)
	}
	return result
}

func (c *VenuesConfig) String() string {
	return fmt.Sprintf("VenuesConfig: %d venues (%d active), %d categories",
		len(c.Venues), len(c.GetActiveVenues()), len(c.Categories()))
}
