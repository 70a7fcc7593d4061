package postgres

import "fmt"

// Config holds the settings for the PostgreSQL backend.
type Config struct {
	Pool PoolConfig

	// AutoMigrate applies pending migrations when the database is opened.
	AutoMigrate bool

	// StatsIntervalSeconds controls how often pool statistics are logged.
	// Default: 30
	StatsIntervalSeconds int32
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if c.StatsIntervalSeconds < 0 {
		return fmt.Errorf("stats interval must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.StatsIntervalSeconds == 0 {
		c.StatsIntervalSeconds = 30
	}
}
