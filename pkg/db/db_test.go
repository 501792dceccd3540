package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/otherjamesbrown/mentionkit/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DSN != "" {
		t.Errorf("expected empty DSN, got %q", cfg.DSN)
	}
	if cfg.MaxConns != 10 {
		t.Errorf("expected max conns 10, got %d", cfg.MaxConns)
	}
	if cfg.MinConns != 1 {
		t.Errorf("expected min conns 1, got %d", cfg.MinConns)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("expected connect timeout 10s, got %v", cfg.ConnectTimeout)
	}
}

func TestConfigFromCLI(t *testing.T) {
	cfg := ConfigFromCLI(&config.DatabaseConfig{URL: "postgres://mk@db/social", MaxConns: 4})
	if cfg.DSN != "postgres://mk@db/social" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	if cfg.MaxConns != 4 {
		t.Errorf("MaxConns = %d, want 4", cfg.MaxConns)
	}

	single := ConfigFromCLI(&config.DatabaseConfig{URL: "postgres://x", MaxConns: 1})
	if single.MinConns > single.MaxConns {
		t.Errorf("MinConns %d exceeds MaxConns %d", single.MinConns, single.MaxConns)
	}

	if ConfigFromCLI(nil).DSN != "" {
		t.Error("nil database config should give empty DSN")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MENTIONKIT_DB_MAX_CONNS", "20")
	t.Setenv("MENTIONKIT_DB_MIN_CONNS", "3")

	cfg := ConfigFromEnv(DefaultConfig())
	if cfg.MaxConns != 20 || cfg.MinConns != 3 {
		t.Errorf("expected 20/3, got %d/%d", cfg.MaxConns, cfg.MinConns)
	}

	t.Setenv("MENTIONKIT_DB_MAX_CONNS", "lots")
	if got := ConfigFromEnv(DefaultConfig()).MaxConns; got != 10 {
		t.Errorf("invalid value should keep default, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) { c.DSN = "postgres://x" }, ""},
		{"missing dsn", func(c *Config) {}, "connection string is required"},
		{"zero max", func(c *Config) { c.DSN = "postgres://x"; c.MaxConns = 0; c.MinConns = 0 }, "must be positive"},
		{"min above max", func(c *Config) { c.DSN = "postgres://x"; c.MaxConns = 2; c.MinConns = 5 }, "must be >= min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	if _, err := Connect(context.Background(), DefaultConfig()); err == nil {
		t.Error("expected error for config without DSN")
	}
}

func TestConnectWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.DSN = "postgres://nobody@127.0.0.1:1/none?sslmode=disable"
	cfg.ConnectTimeout = 100 * time.Millisecond

	if _, err := ConnectWithRetry(ctx, cfg, 3, time.Second); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestClose_NilPool(t *testing.T) {
	Close(nil)
}
