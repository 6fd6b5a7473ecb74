package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
)

type Config struct {
	Storage struct {
		Driver       string `yaml:"driver"`
		BookingsFile string `yaml:"bookings_file"`
		LogFile      string `yaml:"log_file"`
		SQLitePath   string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	VenuesFile string `yaml:"venues_file"`

	Lifecycle struct {
		// AllowReprocess lets an administrator overwrite a decision that was already made.
		AllowReprocess bool `yaml:"allow_reprocess"`
	} `yaml:"lifecycle"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`
}

// BackupConfig controls periodic copies of the data files.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverCSV
	}
	if c.Storage.BookingsFile == "" {
		c.Storage.BookingsFile = "data/bookings.csv"
	}
	if c.Storage.LogFile == "" {
		c.Storage.LogFile = "data/booking_log.csv"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/venuebook.db"
	}
	if c.VenuesFile == "" {
		c.VenuesFile = "configs/venues.yaml"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// DataFiles lists the files the selected storage driver writes.
func (c *Config) DataFiles() []string {
	if c.Storage.Driver == DriverSQLite {
		return []string{c.Storage.SQLitePath}
	}
	return []string{c.Storage.BookingsFile, c.Storage.LogFile}
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}
