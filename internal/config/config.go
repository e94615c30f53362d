package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Remote adapter kinds
const (
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
)

// Config holds all configuration for the sync daemon and the operator CLI
type Config struct {
	Env       string          `yaml:"env" split_words:"true"` // "dev" enables the console log writer
	LogLevel  string          `yaml:"logLevel" split_words:"true"`
	HTTP      HTTPConfig      `yaml:"http" split_words:"true"`
	Store     StoreConfig     `yaml:"store" split_words:"true"`
	Remote    RemoteConfig    `yaml:"remote" split_words:"true"`
	Sync      SyncConfig      `yaml:"sync" split_words:"true"`
	Retention RetentionConfig `yaml:"retention" split_words:"true"`
	Auth      AuthConfig      `yaml:"auth" split_words:"true"`
}

// HTTPConfig configures the local API
type HTTPConfig struct {
	Addr      string          `yaml:"addr" split_words:"true"`
	RateLimit RateLimitConfig `yaml:"rateLimit" split_words:"true"`
}

// RateLimitConfig is the per-subject token bucket; MaxRequests 0 disables it
type RateLimitConfig struct {
	WindowSeconds int `yaml:"windowSeconds" split_words:"true"`
	MaxRequests   int `yaml:"maxRequests" split_words:"true"`
	Burst         int `yaml:"burst" split_words:"true"`
}

// StoreConfig locates the embedded event store
type StoreConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// RemoteConfig selects and tunes the remote store adapter
type RemoteConfig struct {
	Kind string `yaml:"kind" split_words:"true"`

	// rest
	BaseURL    string        `yaml:"baseUrl" split_words:"true"`
	APIKey     string        `yaml:"apiKey" split_words:"true"`
	JWTSecret  string        `yaml:"jwtSecret" split_words:"true"`
	JWTSubject string        `yaml:"jwtSubject" split_words:"true"`
	JWTRole    string        `yaml:"jwtRole" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
	MaxRetries int           `yaml:"maxRetries" split_words:"true"`

	// postgres
	DatabaseURL string `yaml:"databaseUrl" split_words:"true"`
	MaxConns    int32  `yaml:"maxConns" split_words:"true"`

	SoftDelete    bool          `yaml:"softDelete" split_words:"true"`
	ProbeInterval time.Duration `yaml:"probeInterval" split_words:"true"`
}

// SyncConfig tunes the sync manager
type SyncConfig struct {
	Concurrency    int           `yaml:"concurrency" split_words:"true"`
	Interval       time.Duration `yaml:"interval" split_words:"true"`
	MaxAttempts    int           `yaml:"maxAttempts" split_words:"true"`
	InitialBackoff time.Duration `yaml:"initialBackoff" split_words:"true"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" split_words:"true"`
	// AutoApplyDecisions resolves new conflicts from the decision cache
	// after every pass
	AutoApplyDecisions bool `yaml:"autoApplyDecisions" split_words:"true"`
}

// RetentionConfig controls purging of finished history; Days 0 keeps everything
type RetentionConfig struct {
	Days     int           `yaml:"days" split_words:"true"`
	Interval time.Duration `yaml:"interval" split_words:"true"`
}

// AuthConfig protects the local API with HS256 bearer tokens
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Secret  string `yaml:"hs256Secret" split_words:"true"` // HS256 key, STOCKSYNC_AUTH_SECRET
	Issuer  string `yaml:"issuer" split_words:"true"`
	DevMode bool   `yaml:"devMode" split_words:"true"` // accept X-Debug-Sub
}

// MaxAge converts Days into a duration
func (r RetentionConfig) MaxAge() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

// IsDev reports whether the process runs in a development environment
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Env, "dev") || strings.EqualFold(c.Env, "development")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Store.Path == "" {
		return ErrMissingStorePath
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1", ErrInvalidSync)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("%w: maxAttempts must be >= 1", ErrInvalidSync)
	}
	if c.Retention.Days < 0 {
		return ErrInvalidRetention
	}
	if c.Auth.Enabled && c.Auth.Secret == "" && !c.Auth.DevMode {
		return ErrMissingAuthSecret
	}
	return nil
}

// Validate checks the adapter-specific settings
func (r *RemoteConfig) Validate() error {
	switch r.Kind {
	case RemoteREST:
		if r.BaseURL == "" {
			return ErrMissingRemoteBaseURL
		}
	case RemotePostgres:
		if r.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRemoteKind, r.Kind)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Env:      "prod",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8787",
			RateLimit: RateLimitConfig{
				WindowSeconds: 60,
				MaxRequests:   600,
				Burst:         120,
			},
		},
		Store: StoreConfig{Path: "stocksync.db"},
		Remote: RemoteConfig{
			Kind:          RemoteREST,
			JWTRole:       "authenticated",
			Timeout:       15 * time.Second,
			MaxRetries:    2,
			MaxConns:      4,
			ProbeInterval: 15 * time.Second,
		},
		Sync: SyncConfig{
			Concurrency:    4,
			Interval:       time.Minute,
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Retention: RetentionConfig{
			Days:     30,
			Interval: 6 * time.Hour,
		},
	}
}
