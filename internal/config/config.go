// Package config loads the replicator configuration from a YAML file with
// environment overrides. A .env file in the working directory (or the file
// named by REPLICATOR_ENV_FILE) is loaded first; fields tagged `env` are then
// overridden by the matching REPLICATOR_* variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/catalog-replicator/internal/store/sqlstore"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the whole replicator configuration.
type Config struct {
	Local      LocalConfig      `yaml:"local"`
	Queue      QueueConfig      `yaml:"queue"`
	Worker     WorkerConfig     `yaml:"worker"`
	Controller ControllerConfig `yaml:"controller"`
	Store      StoreConfig      `yaml:"store"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Health     HealthConfig     `yaml:"health"`
	Log        LogConfig        `yaml:"log"`

	// Sites, Filters and Replicators are written to the store at startup.
	Sites       []types.Site             `yaml:"sites"`
	Filters     []types.Filter           `yaml:"filters"`
	Replicators []types.ReplicatorConfig `yaml:"replicators"`
}

// LocalConfig names the site this replicator writes to.
type LocalConfig struct {
	Site        string `yaml:"site" env:"REPLICATOR_LOCAL_SITE"`
	Parallelism int    `yaml:"parallelism" env:"REPLICATOR_LOCAL_PARALLELISM"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity" env:"REPLICATOR_QUEUE_CAPACITY"`
}

type WorkerConfig struct {
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"REPLICATOR_OPERATION_TIMEOUT"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" env:"REPLICATOR_INITIAL_BACKOFF"`
	MaxBackoff       time.Duration `yaml:"max_backoff" env:"REPLICATOR_MAX_BACKOFF"`
}

type ControllerConfig struct {
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"REPLICATOR_MONITOR_INTERVAL"`
	PollPeriod      time.Duration `yaml:"poll_period" env:"REPLICATOR_POLL_PERIOD"`
	// SyncInterval enables the periodic sync of replicator configs.
	SyncInterval time.Duration `yaml:"sync_interval" env:"REPLICATOR_SYNC_INTERVAL"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"REPLICATOR_STORE_DRIVER"`
	// SnapshotPath persists the memory store. Empty keeps it volatile.
	SnapshotPath string          `yaml:"snapshot_path" env:"REPLICATOR_SNAPSHOT_PATH"`
	Postgres     sqlstore.Config `yaml:"postgres"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"REPLICATOR_METRICS_ENABLED"`
	Addr    string `yaml:"addr" env:"REPLICATOR_METRICS_ADDR"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"REPLICATOR_HEALTH_ENABLED"`
	Addr    string `yaml:"addr" env:"REPLICATOR_HEALTH_ADDR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"REPLICATOR_LOG_LEVEL"`
	Format string `yaml:"format" env:"REPLICATOR_LOG_FORMAT"`
}

// Default returns the configuration used for every unset field.
func Default() Config {
	return Config{
		Local:  LocalConfig{Site: "local", Parallelism: 4},
		Queue:  QueueConfig{Capacity: 1000},
		Worker: WorkerConfig{OperationTimeout: 30 * time.Second, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 30 * time.Second},
		Controller: ControllerConfig{
			MonitorInterval: 30 * time.Second,
			PollPeriod:      time.Minute,
		},
		Store:   StoreConfig{Driver: DriverMemory},
		Metrics: MetricsConfig{Addr: ":9090"},
		Health:  HealthConfig{Addr: ":50051"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults, applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads REPLICATOR_ENV_FILE if set, else .env. A missing file
// is not an error.
func loadEnvFiles() error {
	file := os.Getenv("REPLICATOR_ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file %s: %w", file, err)
	}
	return nil
}
