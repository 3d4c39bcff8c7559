// Package sqlstore implements the persistence collaborators on PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// Config holds database connection settings.
type Config struct {
	Host     string `yaml:"host" env:"REPLICATOR_DB_HOST"`
	Port     string `yaml:"port" env:"REPLICATOR_DB_PORT"`
	User     string `yaml:"user" env:"REPLICATOR_DB_USER"`
	Password string `yaml:"password" env:"REPLICATOR_DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"REPLICATOR_DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"REPLICATOR_DB_SSLMODE"`
}

// DSN renders cfg as a lib/pq connection string.
func (cfg Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode,
	)
}

// Connect opens and verifies a PostgreSQL connection pool.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

// schema creates the tables used by Store. Statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT '',
	poll_period BIGINT NOT NULL DEFAULT 0,
	parallelism INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS filters (
	id        TEXT PRIMARY KEY,
	site_id   TEXT NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	query     TEXT NOT NULL DEFAULT '',
	priority  INTEGER NOT NULL DEFAULT 5,
	suspended BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS filters_site_id_idx ON filters (site_id);

CREATE TABLE IF NOT EXISTS filter_indexes (
	filter_id      TEXT PRIMARY KEY,
	modified_since TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS replication_items (
	seq               BIGSERIAL PRIMARY KEY,
	id                TEXT NOT NULL UNIQUE,
	metadata_id       TEXT NOT NULL,
	source            TEXT NOT NULL,
	destination       TEXT NOT NULL,
	config_id         TEXT NOT NULL DEFAULT '',
	metadata_modified TIMESTAMPTZ NOT NULL,
	resource_modified TIMESTAMPTZ NOT NULL,
	metadata_size     BIGINT NOT NULL DEFAULT 0,
	resource_size     BIGINT NOT NULL DEFAULT 0,
	start_time        TIMESTAMPTZ NOT NULL,
	done_time         TIMESTAMPTZ NOT NULL,
	action            TEXT NOT NULL,
	status            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS replication_items_lookup_idx
	ON replication_items (metadata_id, source, destination, seq DESC);

CREATE TABLE IF NOT EXISTS replicator_configs (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	source                 TEXT NOT NULL,
	destination            TEXT NOT NULL,
	filter                 TEXT NOT NULL DEFAULT '',
	bidirectional          BOOLEAN NOT NULL DEFAULT FALSE,
	suspended              BOOLEAN NOT NULL DEFAULT FALSE,
	last_metadata_modified TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
