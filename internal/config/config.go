// Package config loads configuration from files, env vars, and flags, and
// validates it.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Batch         BatchConfig         `mapstructure:"batch"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	DSNOverride     string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// BatchConfig holds aggregation batching parameters.
type BatchConfig struct {
	// MaxInClause caps how many parent keys one grouped query may carry.
	MaxInClause int `mapstructure:"max_in_clause"`
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
	Environment    string        `mapstructure:"environment"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// DSN returns a MySQL-compatible data source name. An explicit dsn setting
// wins over the discrete fields; parseTime and a UTC location are always
// applied.
func (d *DatabaseConfig) DSN() string {
	var dsn string
	if d.DSNOverride != "" {
		dsn = d.DSNOverride
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
		return dsn
	}

	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.database", "test")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("batch.max_in_clause", 1000)

	v.SetDefault("observability.service_name", "aggbatch")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.metrics_addr", ":9090")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
}

var defineFlagsOnce sync.Once

func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "Path to config file")
		pflag.String("database-host", "", "Database host")
		pflag.Int("database-port", 0, "Database port")
		pflag.String("database-user", "", "Database user")
		pflag.String("database-name", "", "Database name")
		pflag.String("database-dsn", "", "Full database DSN (overrides discrete fields)")
		pflag.Int("batch-max-in-clause", 0, "Maximum parent keys per grouped query")
		pflag.String("log-level", "", "Log level (debug, info, warn, error)")
		pflag.String("log-format", "", "Log format (json, text)")
	})
}

var flagBindings = map[string]string{
	"database-host":       "database.host",
	"database-port":       "database.port",
	"database-user":       "database.user",
	"database-name":       "database.database",
	"database-dsn":        "database.dsn",
	"batch-max-in-clause": "batch.max_in_clause",
	"log-level":           "observability.logging.level",
	"log-format":          "observability.logging.format",
}

// Load loads configuration with the following precedence: command line
// flags, then environment variables, then the config file, then defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("aggbatch")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/aggbatch/")
		v.AddConfigPath("$HOME/.aggbatch")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Env vars: AGGBATCH_DATABASE_MAX_OPEN_CONNS maps to database.max_open_conns
	v.SetEnvPrefix("AGGBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Only flags the user actually set override the other sources.
	pflag.Visit(func(f *pflag.Flag) {
		if key, ok := flagBindings[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Database.DSNOverride == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host must be set")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database must be set")
		}
	}
	if c.Batch.MaxInClause <= 0 {
		return fmt.Errorf("batch.max_in_clause must be positive, got %d", c.Batch.MaxInClause)
	}
	switch c.Observability.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.logging.level must be one of debug, info, warn, error")
	}
	switch c.Observability.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("observability.logging.format must be json or text")
	}
	return nil
}
