package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Provider)
	require.Equal(t, "memory", cfg.Queue.Provider)
	require.Equal(t, "rss:jobs", cfg.Queue.Key)
	require.Equal(t, "noop", cfg.Publisher.Provider)
	require.Equal(t, "rss:events", cfg.Publisher.Channel)
	require.Equal(t, "none", cfg.Archive.Provider)
	require.Equal(t, 10, cfg.Fetch.Concurrency)
	require.Equal(t, 2, cfg.Fetch.PerHostConcurrency)
	require.Equal(t, 15*time.Minute, cfg.DefaultInterval())
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())
	require.Equal(t, 6*time.Hour, cfg.BackoffMax())
	require.Equal(t, 10*time.Second, cfg.SchedulerTick())
	require.Equal(t, 25, cfg.Scheduler.BatchSize)
	require.True(t, cfg.Enrich.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
fetch:
  concurrency: 4
  per_host_concurrency: 1
scheduler:
  tick_seconds: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Fetch.Concurrency)
	require.Equal(t, 1, cfg.Fetch.PerHostConcurrency)
	require.Equal(t, 30*time.Second, cfg.SchedulerTick())
	// Untouched keys keep their defaults.
	require.Equal(t, 25, cfg.Scheduler.BatchSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("READER_SERVER_PORT", "7070")
	t.Setenv("READER_FETCH_CONCURRENCY", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 3, cfg.Fetch.Concurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Fetch.Concurrency = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Provider = "postgres"
	cfg.DB.DSN = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Publisher.Provider = "pubsub"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Archive.Provider = "gcs"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler.BatchSize = -1
	require.Error(t, cfg.Validate())
}
