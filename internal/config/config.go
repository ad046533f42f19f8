// Package config loads the scan core's recognized options from a
// TOML file: a flat struct with `toml` tags, a Default() baseline,
// and a Load(path) that decodes over the defaults and validates the
// result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every option the scan core itself consumes. Application
// concerns outside the core (HTTP bind, auth, transcoding) are not
// modeled here — loading those belongs to the owning application.
type Config struct {
	Scan     ScanConfig     `toml:"scan"`
	EventBus EventBusConfig `toml:"eventbus"`
	Demo     DemoConfig     `toml:"demo"`
}

// ScanConfig is the `scan.*` option group.
type ScanConfig struct {
	MaxRetryAttempts        int              `toml:"max_retry_attempts"`
	DefaultIntervalMinutes  int              `toml:"default_interval_minutes"`
	Concurrency             ConcurrencyConfig `toml:"concurrency"`
	ProviderTimeoutMs       int              `toml:"provider_timeout_ms"`
	CursorStaleHours        int              `toml:"cursor_stale_hours"`
}

// ConcurrencyConfig is the `scan.concurrency.*` option group: the
// bounded worker-pool size per pipeline stage.
type ConcurrencyConfig struct {
	Scan    int `toml:"scan"`
	Analyze int `toml:"analyze"`
	Resolve int `toml:"resolve"`
	Index   int `toml:"index"`
}

// EventBusConfig is the `eventbus.*` option group.
type EventBusConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// DemoConfig is the `demo.*` option group, governing relaxed
// validation for demo libraries built from zero-length fixture files.
type DemoConfig struct {
	AllowZeroLength   bool `toml:"allow_zero_length"`
	SkipMetadataProbe bool `toml:"skip_metadata_probe"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			MaxRetryAttempts:       5,
			DefaultIntervalMinutes: 60,
			Concurrency: ConcurrencyConfig{
				Scan:    4,
				Analyze: 4,
				Resolve: 2,
				Index:   2,
			},
			ProviderTimeoutMs: 15000,
			CursorStaleHours:  24,
		},
		EventBus: EventBusConfig{RetentionDays: 14},
		Demo:     DemoConfig{AllowZeroLength: false, SkipMetadataProbe: false},
	}
}

// Load decodes path over Default() and validates the result. A
// missing file is not an error: Load returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
