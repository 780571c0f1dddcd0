package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"gopkg.in/yaml.v3"
)

// Storage backends accepted by SCHEDULER_STORAGE.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config captures the scheduler service configuration.
type Config struct {
	HTTPPort   int           `yaml:"http_port"`
	Storage    string        `yaml:"storage"`
	SQLiteDSN  string        `yaml:"sqlite_dsn"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	LogLevel   string        `yaml:"log_level"`
	Timezone   string        `yaml:"timezone"`
	Batch      Batch         `yaml:"batch"`
}

// Batch tunes the persistence loops of recurrence expansion and overlap
// resolution.
type Batch struct {
	Concurrency    int           `yaml:"concurrency"`
	Delay          time.Duration `yaml:"delay"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:   8080,
		Storage:    StorageSQLite,
		SQLiteDSN:  "scheduler.db",
		SessionTTL: 24 * time.Hour,
		LogLevel:   "info",
		Timezone:   "UTC",
		Batch: Batch{
			Concurrency:    1,
			Delay:          50 * time.Millisecond,
			MaxRetries:     0,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads the YAML file named by SCHEDULER_CONFIG_FILE, if any, and then
// applies SCHEDULER_* environment variables on top.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("SCHEDULER_CONFIG_FILE")))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
//
// Invalid values are collected and reported together.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	invalid := make([]string, 0, 2)

	if portValue := env("SCHEDULER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if storage := env("SCHEDULER_STORAGE"); storage != "" {
		cfg.Storage = strings.ToLower(storage)
	}
	if dsn := env("SCHEDULER_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if level := env("SCHEDULER_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if tz := env("SCHEDULER_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	durations := []struct {
		key    string
		target *time.Duration
		allow0 bool
	}{
		{"SCHEDULER_SESSION_TTL", &cfg.SessionTTL, false},
		{"SCHEDULER_BATCH_DELAY", &cfg.Batch.Delay, true},
		{"SCHEDULER_BATCH_INITIAL_BACKOFF", &cfg.Batch.InitialBackoff, false},
		{"SCHEDULER_BATCH_MAX_BACKOFF", &cfg.Batch.MaxBackoff, false},
	}
	for _, d := range durations {
		value := env(d.key)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allow0) {
			invalid = append(invalid, d.key)
			continue
		}
		*d.target = parsed
	}

	if value := env("SCHEDULER_BATCH_CONCURRENCY"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			invalid = append(invalid, "SCHEDULER_BATCH_CONCURRENCY")
		} else {
			cfg.Batch.Concurrency = n
		}
	}
	if value := env("SCHEDULER_BATCH_MAX_RETRIES"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			invalid = append(invalid, "SCHEDULER_BATCH_MAX_RETRIES")
		} else {
			cfg.Batch.MaxRetries = n
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values regardless of where they came from.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("http_port must be positive, got %d", c.HTTPPort))
	}
	switch c.Storage {
	case StorageSQLite:
		if strings.TrimSpace(c.SQLiteDSN) == "" {
			errs = append(errs, errors.New("sqlite_dsn is required for sqlite storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage must be %q or %q, got %q", StorageSQLite, StorageMemory, c.Storage))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, errors.New("batch.concurrency must be at least 1"))
	}
	if c.Batch.MaxRetries < 0 {
		errs = append(errs, errors.New("batch.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}

func readYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
