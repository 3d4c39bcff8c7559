package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/config"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

const testConfig = `
local:
  site: home
  parallelism: 2
controller:
  poll_period: 20ms
store:
  driver: memory
metrics:
  enabled: false
health:
  enabled: false
log:
  level: error
sites:
  - id: home
    url: home
    kind: memory
  - id: alpha
    url: alpha
    kind: memory
    parallelism: 1
filters:
  - id: alpha-all
    site_id: alpha
    query: "*"
    priority: 5
replicators:
  - id: c1
    source: home
    destination: alpha
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("REPLICATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := filepath.Join(t.TempDir(), "replicator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600), "Failed to write test config file")
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "replicator", cmd.Use, "Root command should be 'replicator'")
	assert.Equal(t, Version, cmd.Version)

	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Use] = true
	}
	assert.Len(t, commandNames, 4, "Should have 4 subcommands")
	for _, name := range []string{"run", "sync", "status", "demo"} {
		assert.True(t, commandNames[name], "Should have %q command", name)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, defaultConfigPath, configFlag.DefValue)
}

func TestBuildRunCommand(t *testing.T) {
	path := "x.yaml"
	cmd := buildRunCommand(&path)

	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildDemoCommand(t *testing.T) {
	cmd := buildDemoCommand()

	records := cmd.Flags().Lookup("records")
	require.NotNil(t, records, "Should have --records flag")
	assert.Equal(t, "n", records.Shorthand)
	assert.Equal(t, "100", records.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("timeout"))
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(config.LogConfig{Level: tt.level}, &bytes.Buffer{})
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.muted))
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf).Info("hello", "site", "alpha")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"site":"alpha"`)
}

func TestStatusCommand(t *testing.T) {
	path := writeTestConfig(t)

	var out bytes.Buffer
	cmd := BuildCLI()
	cmd.SetArgs([]string{"status", "-c", path})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	s := out.String()
	assert.Contains(t, s, "local site:       home (parallelism 2)")
	assert.Contains(t, s, "home [local] memory home")
	assert.Contains(t, s, "alpha [remote] memory alpha")
	assert.Contains(t, s, `filter alpha-all priority=5 query="*" watermark=-`)
	assert.Contains(t, s, "c1: home -> alpha watermark=-")
	assert.NotContains(t, s, "metrics:", "Disabled metrics should not be listed")
}

func TestStatusCommand_FileNotFound(t *testing.T) {
	t.Setenv("REPLICATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	err := showStatus(context.Background(), "/nonexistent/replicator.yaml", &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config", "Error should mention config loading failure")
}

func TestSyncCommand(t *testing.T) {
	path := writeTestConfig(t)

	var out bytes.Buffer
	require.NoError(t, syncOnce(context.Background(), path, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "c1: home -> alpha: processed=0")
}

func TestAppReplicatesUntilCancelled(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	network := memory.NewNetwork()
	alpha, home := network.Node("alpha"), network.Node("home")
	for _, id := range []string{"r1", "r2", "r3"} {
		alpha.Put(types.Metadata{ID: id, Type: "record", MetadataModified: time.Now().Add(-time.Minute)}, nil)
	}

	app, err := NewApp(context.Background(), cfg, newLogger(cfg.Log, &bytes.Buffer{}), network)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	assert.Eventually(t, func() bool { return home.Len() == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunDemo(context.Background(), &out, 10, 10*time.Second))

	assert.Contains(t, out.String(), "replicated 10 records from alpha to home")
	assert.Contains(t, out.String(), "filter alpha-datasets priority=8")
}

func TestDemoConfigIsValid(t *testing.T) {
	cfg := DemoConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Health.Enabled)
}
