package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name:  "returns defaults when no overrides",
			setup: func(t *testing.T) []string { return nil },
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "http://localhost:4000/api", cfg.API.BaseURL)
				require.Equal(t, 3, cfg.API.Retry.Attempts)
				require.Equal(t, 5, cfg.API.Throttle.Requests)
				require.Equal(t, 300, cfg.Cache.ListFreshSeconds)
				require.Equal(t, 600, cfg.Cache.DetailFreshSeconds)
				require.Equal(t, "memory", cfg.Cache.Backend)
			},
		},
		{
			name: "merges yaml file overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "client.yaml")
				contents := "api:\n  baseUrl: https://api.example.com/v1\n  timeoutSeconds: 10\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
				require.Equal(t, 10, cfg.API.TimeoutSeconds)
				// Untouched sections keep their defaults.
				require.Equal(t, 3, cfg.API.Retry.Attempts)
			},
		},
		{
			name: "merges json file overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "client.json")
				contents := `{"cache":{"backend":"redis","redis":{"address":"localhost:6379"}}}`
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "redis", cfg.Cache.Backend)
				require.Equal(t, "localhost:6379", cfg.Cache.Redis.Address)
			},
		},
		{
			name: "merges toml file overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "client.toml")
				contents := "[session]\ncredentialsFile = \"/var/lib/meridian/credentials.json\"\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "/var/lib/meridian/credentials.json", cfg.Session.CredentialsFile)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "client.yaml")
				contents := "api:\n  baseUrl: https://api.example.com/v1\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				t.Setenv("MERIDIAN_API__BASE_URL", "https://staging.example.com/v1")
				t.Setenv("MERIDIAN_API__RETRY__ATTEMPTS", "2")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "https://staging.example.com/v1", cfg.API.BaseURL)
				require.Equal(t, 2, cfg.API.Retry.Attempts)
			},
		},
		{
			name: "maps env keys onto camel case paths",
			setup: func(t *testing.T) []string {
				t.Setenv("MERIDIAN_CACHE__ENTRY_TTL_SECONDS", "900")
				t.Setenv("MERIDIAN_SESSION__REFRESH_LEEWAY_SECONDS", "120")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 900, cfg.Cache.EntryTTLSeconds)
				require.Equal(t, 120, cfg.Session.RefreshLeewaySeconds)
			},
		},
		{
			name: "rejects missing file",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "absent.yaml")}
			},
			wantErr: true,
		},
		{
			name: "rejects unsupported extension",
			setup: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "client.ini")
				require.NoError(t, os.WriteFile(path, []byte("api="), 0o600))
				return []string{path}
			},
			wantErr: true,
		},
		{
			name: "rejects invalid snapshot",
			setup: func(t *testing.T) []string {
				t.Setenv("MERIDIAN_API__TIMEOUT_SECONDS", "0")
				return nil
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			cfg, err := NewLoader("MERIDIAN", files...).Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.assert(t, cfg)
		})
	}
}
