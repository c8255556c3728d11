// Package config loads run settings from the environment and soil
// scenarios from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type (
	// Config holds settings for one simulation run
	Config struct {
		ScenarioPath string
		DBPath       string
		Days         int
		DayInterval  time.Duration
		LogLevel     string
		LogFormat    string
	}
)

const (
	DefaultDBPath    = "data/soilflow.db"
	DefaultDays      = 365
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	MaxDays = 1000 * 366
)

var (
	ErrNoScenario     = errors.New("scenario path is required")
	ErrInvalidDays    = errors.New("days must be positive")
	ErrInvalidLevel   = errors.New("invalid log level")
	ErrInvalidFormat  = errors.New("log format must be text or json")
	ErrInvalidEnvVar  = errors.New("invalid environment variable")
	ErrNegativeWindow = errors.New("day interval cannot be negative")
)

// NewDefaultConfig creates a configuration with defaults for everything but
// the scenario path
func NewDefaultConfig() *Config {
	return &Config{
		DBPath:    DefaultDBPath,
		Days:      DefaultDays,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// LoadFromEnv overrides values from SOILFLOW_* environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SOILFLOW_SCENARIO"); v != "" {
		c.ScenarioPath = v
	}
	if v := os.Getenv("SOILFLOW_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SOILFLOW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SOILFLOW_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("SOILFLOW_DAY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SOILFLOW_DAY_INTERVAL: %v", ErrInvalidEnvVar, err)
		}
		c.DayInterval = d
	}
	return loadEnvInt("SOILFLOW_DAYS", &c.Days, 1, MaxDays)
}

// Validate checks that the configuration can be used to start a run
func (c *Config) Validate() error {
	if c.ScenarioPath == "" {
		return ErrNoScenario
	}
	if c.Days <= 0 || c.Days > MaxDays {
		return ErrInvalidDays
	}
	if c.DayInterval < 0 {
		return ErrNegativeWindow
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.LogFormat)
	}
	return nil
}

func loadEnvInt(key string, target *int, min, max int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEnvVar, key, err)
	}
	if n < min || n > max {
		return fmt.Errorf("%w: %s: %d out of range [%d, %d]",
			ErrInvalidEnvVar, key, n, min, max)
	}
	*target = n
	return nil
}
