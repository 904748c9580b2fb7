package config

import "time"

// Database type constants
const (
	// DatabaseTypeMemory represents the in-process engine
	DatabaseTypeMemory = "memory"
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
)

// Config is the root configuration structure for dbext tools
type Config struct {
	Service       ServiceConfig
	Database      DatabaseConfig
	Transactions  TransactionsConfig `mapstructure:"transactions"`
	Observability ObservabilityConfig
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the engine that transactions run against.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // memory, postgres, mysql
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// TransactionsConfig holds the defaults applied to every transaction.
type TransactionsConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level"`
	LogFormat         string  `mapstructure:"log_format"` // json, text
	ServiceName       string  `mapstructure:"service_name"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// DefaultConfig returns the configuration used when neither a file nor the
// environment override a value.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "dbext",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Type:            DatabaseTypeMemory,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 2 * time.Minute,
			QueryTimeout:    10 * time.Second,
			EnsureSchema:    true,
		},
		Transactions: TransactionsConfig{
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "text",
			ServiceName:       "dbext",
			TracingSampleRate: 1.0,
		},
	}
}
