package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every client-level option: where the platform API lives, how
// the resource cache behaves, where credentials are kept, and how the client
// logs.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Cache   CacheConfig   `koanf:"cache"`
	Session SessionConfig `koanf:"session"`
	Logging LoggingConfig `koanf:"logging"`
}

// APIConfig shapes the outbound transport.
type APIConfig struct {
	BaseURL        string         `koanf:"baseUrl"`
	TimeoutSeconds int            `koanf:"timeoutSeconds"`
	Retry          RetryConfig    `koanf:"retry"`
	Throttle       ThrottleConfig `koanf:"throttle"`
}

// Timeout returns the per-request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryConfig bounds fetch attempts on transient failures.
type RetryConfig struct {
	Attempts int `koanf:"attempts"`
}

// ThrottleConfig shapes the advisory client-side throttle. Real limits are
// enforced server-side; this only smooths bursts.
type ThrottleConfig struct {
	Requests      int `koanf:"requests"`
	WindowSeconds int `koanf:"windowSeconds"`
}

// Window returns the throttle window as a duration.
func (c ThrottleConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// CacheConfig selects the entry store backend and the freshness windows.
type CacheConfig struct {
	Backend            string      `koanf:"backend"`
	ListFreshSeconds   int         `koanf:"listFreshSeconds"`
	DetailFreshSeconds int         `koanf:"detailFreshSeconds"`
	EntryTTLSeconds    int         `koanf:"entryTtlSeconds"`
	Redis              RedisConfig `koanf:"redis"`
}

// ListFreshness returns the list staleness window as a duration.
func (c CacheConfig) ListFreshness() time.Duration {
	return time.Duration(c.ListFreshSeconds) * time.Second
}

// DetailFreshness returns the detail staleness window as a duration.
func (c CacheConfig) DetailFreshness() time.Duration {
	return time.Duration(c.DetailFreshSeconds) * time.Second
}

// EntryTTL returns the hard eviction horizon as a duration.
func (c CacheConfig) EntryTTL() time.Duration {
	return time.Duration(c.EntryTTLSeconds) * time.Second
}

// RedisConfig points the redis cache backend at its server.
type RedisConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// SessionConfig locates the credential file and tunes token refresh.
type SessionConfig struct {
	CredentialsFile      string `koanf:"credentialsFile"`
	RefreshLeewaySeconds int    `koanf:"refreshLeewaySeconds"`
}

// RefreshLeeway returns the remaining-lifetime threshold below which access
// tokens are refreshed ahead of use.
func (c SessionConfig) RefreshLeeway() time.Duration {
	return time.Duration(c.RefreshLeewaySeconds) * time.Second
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate enforces invariants that keep the client predictable before any
// request leaves the process.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: api.baseUrl invalid: %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: api.timeoutSeconds invalid: %d", c.API.TimeoutSeconds)
	}
	if c.API.Retry.Attempts < 1 || c.API.Retry.Attempts > 10 {
		return fmt.Errorf("config: api.retry.attempts out of range: %d", c.API.Retry.Attempts)
	}
	if c.API.Throttle.Requests < 0 || c.API.Throttle.WindowSeconds < 0 {
		return errors.New("config: api.throttle values must not be negative")
	}
	if c.Cache.ListFreshSeconds < 0 || c.Cache.DetailFreshSeconds < 0 || c.Cache.EntryTTLSeconds < 0 {
		return errors.New("config: cache windows must not be negative")
	}
	backend := strings.TrimSpace(strings.ToLower(c.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Cache.Backend)
	}
	if c.Session.RefreshLeewaySeconds < 0 {
		return fmt.Errorf("config: session.refreshLeewaySeconds invalid: %d", c.Session.RefreshLeewaySeconds)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level unsupported: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format unsupported: %s", c.Logging.Format)
	}
	return nil
}

// DefaultConfig returns the baseline values for a local deployment.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:4000/api",
			TimeoutSeconds: 30,
			Retry:          RetryConfig{Attempts: 3},
			Throttle:       ThrottleConfig{Requests: 5, WindowSeconds: 60},
		},
		Cache: CacheConfig{
			Backend:            "memory",
			ListFreshSeconds:   300,
			DetailFreshSeconds: 600,
			EntryTTLSeconds:    1800,
		},
		Session: SessionConfig{
			CredentialsFile:      "./credentials.json",
			RefreshLeewaySeconds: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
