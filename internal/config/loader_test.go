package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"STOCKSYNC_ENV", "STOCKSYNC_LOG_LEVEL", "STOCKSYNC_STORE_PATH",
	"STOCKSYNC_REMOTE_KIND", "STOCKSYNC_REMOTE_BASE_URL", "STOCKSYNC_REMOTE_DATABASE_URL",
	"STOCKSYNC_REMOTE_TIMEOUT", "STOCKSYNC_SYNC_CONCURRENCY", "STOCKSYNC_SYNC_AUTO_APPLY_DECISIONS",
	"STOCKSYNC_HTTP_RATE_LIMIT_BURST", "STOCKSYNC_AUTH_ENABLED", "STOCKSYNC_REMOTE_API_KEY",
	"STOCKSYNC_AUTH_SECRET", "STOCKSYNC_RETENTION_DAYS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stocksync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		checks  func(*testing.T, *Config)
	}{
		{
			name:    "default values when no env set",
			envVars: map[string]string{},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "info" {
					t.Errorf("expected default LogLevel=info, got %s", cfg.LogLevel)
				}
				if cfg.Remote.Kind != RemoteREST {
					t.Errorf("expected default remote kind rest, got %s", cfg.Remote.Kind)
				}
				if cfg.Sync.Concurrency != 4 {
					t.Errorf("expected default concurrency 4, got %d", cfg.Sync.Concurrency)
				}
			},
		},
		{
			name: "nested overrides",
			envVars: map[string]string{
				"STOCKSYNC_REMOTE_KIND":               "postgres",
				"STOCKSYNC_REMOTE_DATABASE_URL":       "postgres://localhost/stock",
				"STOCKSYNC_REMOTE_TIMEOUT":            "3s",
				"STOCKSYNC_SYNC_CONCURRENCY":          "8",
				"STOCKSYNC_SYNC_AUTO_APPLY_DECISIONS": "true",
				"STOCKSYNC_HTTP_RATE_LIMIT_BURST":     "5",
				"STOCKSYNC_REMOTE_API_KEY":            "anon",
				"STOCKSYNC_AUTH_SECRET":               "s3cret",
				"STOCKSYNC_RETENTION_DAYS":            "9",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.Remote.Kind != RemotePostgres {
					t.Errorf("expected postgres, got %s", cfg.Remote.Kind)
				}
				if cfg.Remote.DatabaseURL != "postgres://localhost/stock" {
					t.Errorf("unexpected DatabaseURL %s", cfg.Remote.DatabaseURL)
				}
				if cfg.Remote.Timeout != 3*time.Second {
					t.Errorf("expected 3s timeout, got %s", cfg.Remote.Timeout)
				}
				if cfg.Sync.Concurrency != 8 || !cfg.Sync.AutoApplyDecisions {
					t.Errorf("sync overrides not applied: %+v", cfg.Sync)
				}
				if cfg.HTTP.RateLimit.Burst != 5 {
					t.Errorf("expected burst 5, got %d", cfg.HTTP.RateLimit.Burst)
				}
				if cfg.Remote.APIKey != "anon" || cfg.Auth.Secret != "s3cret" || cfg.Retention.Days != 9 {
					t.Errorf("split keys not applied: apiKey=%q secret=%q days=%d", cfg.Remote.APIKey, cfg.Auth.Secret, cfg.Retention.Days)
				}
				if cfg.HTTP.RateLimit.MaxRequests != 600 {
					t.Errorf("unset sibling lost its default: %d", cfg.HTTP.RateLimit.MaxRequests)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checks(t, cfg)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
env: dev
logLevel: debug
store:
  path: /var/lib/stocksync/events.db
remote:
  baseUrl: https://stock.example.com/rest/v1
  apiKey: anon
sync:
  interval: 30s
retention:
  days: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsDev() {
		t.Error("expected dev environment")
	}
	if cfg.Store.Path != "/var/lib/stocksync/events.db" {
		t.Errorf("unexpected store path %s", cfg.Store.Path)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("expected 30s interval, got %s", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("keys absent from the file should keep defaults, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Retention.MaxAge() != 7*24*time.Hour {
		t.Errorf("unexpected retention %s", cfg.Retention.MaxAge())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestUnprefixedEnvironmentIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PATH", "/usr/local/bin:/usr/bin")
	t.Setenv("ENV", "dev")
	t.Setenv("KIND", "postgres")
	t.Setenv("INTERVAL", "1s")
	t.Setenv("TIMEOUT", "1s")
	t.Setenv("DAYS", "1")

	cfg, err := Load(writeFile(t, "store:\n  path: /var/lib/stocksync/events.db\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/var/lib/stocksync/events.db" {
		t.Errorf("store path taken from an unprefixed variable: %s", cfg.Store.Path)
	}
	if cfg.IsDev() {
		t.Error("env taken from an unprefixed variable")
	}
	if cfg.Remote.Kind != RemoteREST {
		t.Errorf("remote kind taken from an unprefixed variable: %s", cfg.Remote.Kind)
	}
	if cfg.Sync.Interval != time.Minute || cfg.Retention.Interval != 6*time.Hour {
		t.Errorf("intervals taken from an unprefixed variable: %s %s", cfg.Sync.Interval, cfg.Retention.Interval)
	}
	if cfg.Remote.Timeout != 15*time.Second {
		t.Errorf("timeout taken from an unprefixed variable: %s", cfg.Remote.Timeout)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("retention taken from an unprefixed variable: %d", cfg.Retention.Days)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "logLevel: debug\nremote:\n  baseUrl: https://file.example.com\n")
	t.Setenv("STOCKSYNC_REMOTE_BASE_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("env should win over file, got %s", cfg.Remote.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("file value should survive when env is unset, got %s", cfg.LogLevel)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("expected ErrConfigFileNotFound, got %v", err)
	}

	_, err = Load(writeFile(t, "remote: [not, a, map"))
	if !errors.Is(err, ErrInvalidConfigFormat) {
		t.Errorf("expected ErrInvalidConfigFormat, got %v", err)
	}

	t.Setenv("STOCKSYNC_SYNC_CONCURRENCY", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected an error for a non-numeric override")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Remote.BaseURL = "https://stock.example.com"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid rest", func(*Config) {}, nil},
		{"valid postgres", func(c *Config) {
			c.Remote.Kind = RemotePostgres
			c.Remote.DatabaseURL = "postgres://localhost/stock"
		}, nil},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"no store path", func(c *Config) { c.Store.Path = "" }, ErrMissingStorePath},
		{"unknown remote", func(c *Config) { c.Remote.Kind = "grpc" }, ErrUnknownRemoteKind},
		{"rest without url", func(c *Config) { c.Remote.BaseURL = "" }, ErrMissingRemoteBaseURL},
		{"postgres without dsn", func(c *Config) { c.Remote.Kind = RemotePostgres }, ErrMissingDatabaseURL},
		{"zero concurrency", func(c *Config) { c.Sync.Concurrency = 0 }, ErrInvalidSync},
		{"negative retention", func(c *Config) { c.Retention.Days = -1 }, ErrInvalidRetention},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, ErrMissingAuthSecret},
		{"auth in dev mode", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.DevMode = true
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}
