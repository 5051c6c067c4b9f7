package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
ingest:
  staging_dir: /var/spool/leaklook
  concurrency: 8
  parse_timeout_seconds: 45
store:
  provider: postgres
  dsn: postgres://leaklook:pw@localhost:5432/leaklook
  max_conns: 16
  min_conns: 2
  conn_lifetime_minutes: 10
notifier:
  provider: pubsub
  project_id: leaklook-prod
  topic_name: merged-records
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, "/var/spool/leaklook", cfg.Ingest.StagingDir)
	require.Equal(t, 8, cfg.Ingest.Concurrency)
	require.Equal(t, 45*time.Second, cfg.ParseTimeout())
	require.Equal(t, StorePostgres, cfg.Store.Provider)
	require.Equal(t, 16, cfg.Store.MaxConns)
	require.Equal(t, 10*time.Minute, cfg.ConnLifetime())
	require.Equal(t, NotifierPubSub, cfg.Notifier.Provider)
	require.Equal(t, "leaklook-prod", cfg.Notifier.ProjectID)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, StoreMemory, cfg.Store.Provider)
	require.Equal(t, NotifierLog, cfg.Notifier.Provider)
	require.Equal(t, 4, cfg.Ingest.Concurrency)
	require.Equal(t, 30*time.Second, cfg.ParseTimeout())
	require.True(t, cfg.Logging.Development)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty staging dir", func(c *Config) { c.Ingest.StagingDir = "" }},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }},
		{"unknown store", func(c *Config) { c.Store.Provider = "etcd" }},
		{"postgres without dsn", func(c *Config) { c.Store.Provider = StorePostgres }},
		{"unknown notifier", func(c *Config) { c.Notifier.Provider = "smtp" }},
		{"pubsub without project", func(c *Config) { c.Notifier.Provider = NotifierPubSub }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
