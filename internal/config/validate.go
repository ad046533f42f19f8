package config

import "errors"

// Validate ensures the configuration is usable, one check per option
// group.
func (c *Config) Validate() error {
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateEventBus(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.MaxRetryAttempts <= 0 {
		return errors.New("scan.max_retry_attempts must be positive")
	}
	if c.Scan.DefaultIntervalMinutes <= 0 {
		return errors.New("scan.default_interval_minutes must be positive")
	}
	if c.Scan.ProviderTimeoutMs <= 0 {
		return errors.New("scan.provider_timeout_ms must be positive")
	}
	if c.Scan.CursorStaleHours <= 0 {
		return errors.New("scan.cursor_stale_hours must be positive")
	}
	for name, n := range map[string]int{
		"scan.concurrency.scan":    c.Scan.Concurrency.Scan,
		"scan.concurrency.analyze": c.Scan.Concurrency.Analyze,
		"scan.concurrency.resolve": c.Scan.Concurrency.Resolve,
		"scan.concurrency.index":   c.Scan.Concurrency.Index,
	} {
		if n <= 0 {
			return errors.New(name + " must be positive")
		}
	}
	return nil
}

func (c *Config) validateEventBus() error {
	if c.EventBus.RetentionDays <= 0 {
		return errors.New("eventbus.retention_days must be positive")
	}
	return nil
}
