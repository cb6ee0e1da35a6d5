// Package config loads configuration from files, env vars, and flags,
// and validates it. Only the demo binary consumes it; the engine
// packages take plain values.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Mutation      MutationConfig      `mapstructure:"mutation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig holds connection parameters. Driver selects both the
// sql driver and the SQL dialect.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql, postgres, sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	PasswordFile    string        `mapstructure:"password_file"`
	PasswordPrompt  bool          `mapstructure:"password_prompt"`
	Database        string        `mapstructure:"database"`
	TLSMode         string        `mapstructure:"tls_mode"` // skip-verify, true, or false
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MutationConfig holds engine-level knobs.
type MutationConfig struct {
	// Isolation is the level used when the engine opens its own
	// transaction: default, read-committed, repeatable-read, serializable.
	Isolation string `mapstructure:"isolation"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	TracingEnabled bool          `mapstructure:"tracing_enabled"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "tidb", "postgres", "postgresql", "pg", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "sqlite3" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("database.port: invalid port %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	switch c.Database.TLSMode {
	case "", "false", "true", "skip-verify":
	default:
		return fmt.Errorf("database.tls_mode: must be true, false, or skip-verify, got %q", c.Database.TLSMode)
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection pool sizes must not be negative")
	}
	switch c.Mutation.Isolation {
	case "", "default", "read-committed", "repeatable-read", "serializable":
	default:
		return fmt.Errorf("mutation.isolation: unknown level %q", c.Mutation.Isolation)
	}
	switch c.Observability.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.logging.level: unknown level %q", c.Observability.Logging.Level)
	}
	switch c.Observability.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("observability.logging.format: must be json or text, got %q", c.Observability.Logging.Format)
	}
	return nil
}

// DialectName maps the configured driver onto the engine's dialect
// names.
func (d *DatabaseConfig) DialectName() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return "mysql"
	}
}
