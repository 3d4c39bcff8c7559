package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replicator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// noEnvFile points the .env lookup at a file that does not exist.
func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("REPLICATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadAppliesDefaults(t *testing.T) {
	noEnvFile(t)
	cfg, err := Load(writeConfig(t, "local:\n  site: home\n"))
	require.NoError(t, err)

	assert.Equal(t, "home", cfg.Local.Site)
	assert.Equal(t, 4, cfg.Local.Parallelism)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Worker.OperationTimeout)
	assert.Equal(t, time.Minute, cfg.Controller.PollPeriod)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadParsesSeedsAndDurations(t *testing.T) {
	noEnvFile(t)
	cfg, err := Load(writeConfig(t, `
local:
  site: home
  parallelism: 8
controller:
  poll_period: 15s
  sync_interval: 5m
sites:
  - id: home
    url: home
    kind: memory
  - id: a
    url: alpha
    kind: memory
    poll_period: 10s
    parallelism: 2
filters:
  - id: all
    site_id: a
    query: "*"
    priority: 7
replicators:
  - id: c1
    source: a
    destination: home
    bidirectional: true
`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Controller.PollPeriod)
	assert.Equal(t, 5*time.Minute, cfg.Controller.SyncInterval)
	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, 10*time.Second, cfg.Sites[1].PollPeriod)
	assert.Equal(t, 2, cfg.Sites[1].Parallelism)
	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, 7, cfg.Filters[0].Priority)
	require.Len(t, cfg.Replicators, 1)
	assert.True(t, cfg.Replicators[0].Bidirectional)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	noEnvFile(t)
	t.Setenv("REPLICATOR_LOCAL_PARALLELISM", "16")
	t.Setenv("REPLICATOR_POLL_PERIOD", "2m")
	t.Setenv("REPLICATOR_METRICS_ENABLED", "yes")
	t.Setenv("REPLICATOR_STORE_DRIVER", "postgres")
	t.Setenv("REPLICATOR_DB_HOST", "db")
	t.Setenv("REPLICATOR_DB_USER", "replicator")
	t.Setenv("REPLICATOR_DB_NAME", "catalog")
	t.Setenv("REPLICATOR_QUEUE_CAPACITY", "not-a-number")

	cfg, err := Load(writeConfig(t, "local:\n  parallelism: 2\nqueue:\n  capacity: 50\n"))
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Local.Parallelism)
	assert.Equal(t, 2*time.Minute, cfg.Controller.PollPeriod)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db", cfg.Store.Postgres.Host)
	assert.Equal(t, 50, cfg.Queue.Capacity, "unparsable values are ignored")
}

func TestEnvFileIsLoaded(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("REPLICATOR_LOG_FORMAT=json\n"), 0o600))
	t.Setenv("REPLICATOR_ENV_FILE", envFile)
	// godotenv never overrides a variable that is already set. Setenv
	// restores the original value once the test ends.
	t.Setenv("REPLICATOR_LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("REPLICATOR_LOG_FORMAT"))

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	noEnvFile(t)
	_, err := Load(writeConfig(t, `
local:
  site: ""
  parallelism: 0
store:
  driver: redis
log:
  level: loud
sites:
  - id: a
    kind: memory
  - id: a
filters:
  - id: f
    site_id: ghost
    priority: 12
replicators:
  - id: r
    source: a
    destination: a
`))
	require.Error(t, err)

	for _, field := range []string{
		"local.site", "local.parallelism", "store.driver", "log.level",
		"sites[1].id", "sites[1].kind", "filters[0].site_id", "filters[0].priority", "replicators[0]",
	} {
		assert.Contains(t, err.Error(), field)
	}

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMissingFile(t *testing.T) {
	noEnvFile(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
