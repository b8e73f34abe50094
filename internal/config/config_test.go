package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recreationcalc/recreationcalc/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Empty(t, cfg.Auth.AdminEmails)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
catalog:
  cache_ttl: 30s
worker:
  concurrency: 2
`), 0o600))

	t.Setenv(config.ConfigPathEnvVar, path)
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("ADMIN_EMAILS", "ops@example.com, lead@example.com")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Catalog.CacheTTL)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.Auth.AdminEmails)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{
			name:    "unknown environment",
			mutate:  func(c *config.Config) { c.App.Environment = "qa" },
			wantErr: "app.environment",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *config.Config) { c.Database.Driver = "mysql" },
			wantErr: "database.driver",
		},
		{
			name: "production requires signing key",
			mutate: func(c *config.Config) {
				c.App.Environment = "production"
			},
			wantErr: "auth.signing_key",
		},
		{
			name: "production rejects memory driver",
			mutate: func(c *config.Config) {
				c.App.Environment = "production"
				c.Auth.SigningKey = "prod-key"
				c.Database.Driver = "memory"
			},
			wantErr: "memory database driver",
		},
		{
			name: "pubsub needs project",
			mutate: func(c *config.Config) {
				c.PubSub.Enabled = true
			},
			wantErr: "pubsub.project_id",
		},
		{
			name:    "sample ratio out of range",
			mutate:  func(c *config.Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "telemetry.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
