package config

import (
	"strings"
	"testing"
)

func TestConfigValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "postgres requires url",
			mutate:  func(c *Config) { c.Database.Type = DatabaseTypePostgres },
			wantErr: "database.url is required",
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.Database.Type = "mongodb" },
			wantErr: "invalid database.type",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Transactions.MaxRetries = -1 },
			wantErr: "transactions.max_retries cannot be negative",
		},
		{
			name: "retries need backoff",
			mutate: func(c *Config) {
				c.Transactions.MaxRetries = 2
				c.Transactions.RetryBackoff = 0
			},
			wantErr: "transactions.retry_backoff must be greater than 0",
		},
		{
			name: "tracing requires endpoint",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
			},
			wantErr: "observability.tracing_endpoint is required",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Observability.LogFormat = "xml" },
			wantErr: "invalid observability.log_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidate_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Type = "oracle"
	cfg.Observability.LogLevel = "trace"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "invalid database.type") || !strings.Contains(msg, "invalid observability.log_level") {
		t.Fatalf("expected both errors, got %v", err)
	}
}
