package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "rejects base url without scheme",
			mutate:  func(cfg *Config) { cfg.API.BaseURL = "localhost:4000" },
			wantErr: "api.baseUrl",
		},
		{
			name:    "rejects zero timeout",
			mutate:  func(cfg *Config) { cfg.API.TimeoutSeconds = 0 },
			wantErr: "timeoutSeconds",
		},
		{
			name:    "rejects excessive retry budget",
			mutate:  func(cfg *Config) { cfg.API.Retry.Attempts = 11 },
			wantErr: "retry.attempts",
		},
		{
			name:    "rejects unknown cache backend",
			mutate:  func(cfg *Config) { cfg.Cache.Backend = "memcached" },
			wantErr: "cache.backend",
		},
		{
			name:    "redis backend requires an address",
			mutate:  func(cfg *Config) { cfg.Cache.Backend = "redis" },
			wantErr: "redis.address",
		},
		{
			name: "redis backend with address passes",
			mutate: func(cfg *Config) {
				cfg.Cache.Backend = "redis"
				cfg.Cache.Redis.Address = "localhost:6379"
			},
		},
		{
			name:    "rejects unknown log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "rejects unknown log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "logfmt" },
			wantErr: "logging.format",
		},
		{
			name:    "rejects negative refresh leeway",
			mutate:  func(cfg *Config) { cfg.Session.RefreshLeewaySeconds = -1 },
			wantErr: "refreshLeewaySeconds",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 30*time.Second, cfg.API.Timeout())
	require.Equal(t, time.Minute, cfg.API.Throttle.Window())
	require.Equal(t, 5*time.Minute, cfg.Cache.ListFreshness())
	require.Equal(t, 10*time.Minute, cfg.Cache.DetailFreshness())
	require.Equal(t, 30*time.Minute, cfg.Cache.EntryTTL())
	require.Equal(t, 5*time.Minute, cfg.Session.RefreshLeeway())
}
