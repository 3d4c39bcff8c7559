package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

const (
	siteColumns   = `id, name, url, kind, poll_period, parallelism`
	filterColumns = `id, site_id, name, query, priority, suspended`
	itemColumns   = `id, metadata_id, source, destination, config_id, metadata_modified, resource_modified,
	metadata_size, resource_size, start_time, done_time, action, status`
	configColumns = `id, name, source, destination, filter, bidirectional, suspended, last_metadata_modified`
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// Sites
// ============================================================================

func (s *Store) Sites(ctx context.Context) ([]types.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY id`

	var sites []types.Site
	if err := s.db.SelectContext(ctx, &sites, query); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

func (s *Store) Site(ctx context.Context, id string) (types.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`

	var site types.Site
	if err := s.db.GetContext(ctx, &site, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Site{}, fmt.Errorf("site %s: %w", id, store.ErrNotFound)
		}
		return types.Site{}, fmt.Errorf("failed to get site %s: %w", id, err)
	}
	return site, nil
}

func (s *Store) SaveSite(ctx context.Context, site types.Site) error {
	if site.ID == "" {
		return errors.New("save site: empty id")
	}
	query := `
		INSERT INTO sites (` + siteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, kind = EXCLUDED.kind,
			poll_period = EXCLUDED.poll_period, parallelism = EXCLUDED.parallelism
	`
	_, err := s.db.ExecContext(ctx, query,
		site.ID, site.Name, site.URL, site.Kind, int64(site.PollPeriod), site.Parallelism)
	if err != nil {
		return fmt.Errorf("failed to save site %s: %w", site.ID, err)
	}
	return nil
}

func (s *Store) DeleteSite(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	return execRequireRows(result, err, fmt.Errorf("delete site %s: %w", id, store.ErrNotFound))
}

// ============================================================================
// Filters and watermarks
// ============================================================================

func (s *Store) Filters(ctx context.Context, siteID string) ([]types.Filter, error) {
	query := `SELECT ` + filterColumns + ` FROM filters WHERE site_id = $1 ORDER BY id`

	var filters []types.Filter
	if err := s.db.SelectContext(ctx, &filters, query, siteID); err != nil {
		return nil, fmt.Errorf("failed to list filters of site %s: %w", siteID, err)
	}
	return filters, nil
}

func (s *Store) SaveFilter(ctx context.Context, filter types.Filter) error {
	if filter.ID == "" {
		filter.ID = uuid.NewString()
	}
	query := `
		INSERT INTO filters (` + filterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			site_id = EXCLUDED.site_id, name = EXCLUDED.name, query = EXCLUDED.query,
			priority = EXCLUDED.priority, suspended = EXCLUDED.suspended
	`
	_, err := s.db.ExecContext(ctx, query,
		filter.ID, filter.SiteID, filter.Name, filter.Query, filter.Priority, filter.Suspended)
	if err != nil {
		return fmt.Errorf("failed to save filter %s: %w", filter.ID, err)
	}
	return nil
}

// GetOrCreateIndex uses INSERT ... ON CONFLICT DO NOTHING then SELECT.
func (s *Store) GetOrCreateIndex(ctx context.Context, filter types.Filter) (types.FilterIndex, error) {
	insertQuery := `INSERT INTO filter_indexes (filter_id, modified_since) VALUES ($1, $2) ON CONFLICT (filter_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insertQuery, filter.ID, time.Time{}); err != nil {
		return types.FilterIndex{}, fmt.Errorf("failed to insert filter index: %w", err)
	}

	selectQuery := `SELECT filter_id, modified_since FROM filter_indexes WHERE filter_id = $1`

	var idx types.FilterIndex
	if err := s.db.GetContext(ctx, &idx, selectQuery, filter.ID); err != nil {
		return types.FilterIndex{}, fmt.Errorf("failed to select filter index: %w", err)
	}
	return idx, nil
}

// SaveIndex never moves a stored watermark backwards.
func (s *Store) SaveIndex(ctx context.Context, index types.FilterIndex) error {
	query := `
		INSERT INTO filter_indexes (filter_id, modified_since) VALUES ($1, $2)
		ON CONFLICT (filter_id) DO UPDATE SET
			modified_since = GREATEST(filter_indexes.modified_since, EXCLUDED.modified_since)
	`
	if _, err := s.db.ExecContext(ctx, query, index.FilterID, index.ModifiedSince); err != nil {
		return fmt.Errorf("failed to save filter index %s: %w", index.FilterID, err)
	}
	return nil
}

// ============================================================================
// Replication history
// ============================================================================

func (s *Store) LatestItem(ctx context.Context, metadataID, source, destination string) (*types.ReplicationItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM replication_items
		WHERE metadata_id = $1 AND source = $2 AND destination = $3
		ORDER BY seq DESC
		LIMIT 1
	`
	var item types.ReplicationItem
	if err := s.db.GetContext(ctx, &item, query, metadataID, source, destination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest item %s: %w", metadataID, err)
	}
	return &item, nil
}

func (s *Store) SaveItem(ctx context.Context, item types.ReplicationItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	query := `
		INSERT INTO replication_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.MetadataID, item.Source, item.Destination, item.ConfigID,
		item.MetadataModified, item.ResourceModified, item.MetadataSize, item.ResourceSize,
		item.StartTime, item.DoneTime, string(item.Action), string(item.Status))
	if err != nil {
		return fmt.Errorf("failed to save item %s: %w", item.MetadataID, err)
	}
	return nil
}

func (s *Store) FailureList(ctx context.Context, source, destination string) ([]string, error) {
	query := `
		SELECT metadata_id FROM (
			SELECT DISTINCT ON (metadata_id) metadata_id, status
			FROM replication_items
			WHERE source = $1 AND destination = $2
			ORDER BY metadata_id, seq DESC
		) latest
		WHERE status <> 'SUCCESS'
		ORDER BY metadata_id
	`
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, source, destination); err != nil {
		return nil, fmt.Errorf("failed to list failures %s -> %s: %w", source, destination, err)
	}
	return ids, nil
}

// ============================================================================
// Configs
// ============================================================================

func (s *Store) Configs(ctx context.Context) ([]types.ReplicatorConfig, error) {
	query := `SELECT ` + configColumns + ` FROM replicator_configs WHERE suspended = FALSE ORDER BY id`

	var configs []types.ReplicatorConfig
	if err := s.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	return configs, nil
}

// SaveConfig upserts config, keeping the later of the stored and the given
// watermark.
func (s *Store) SaveConfig(ctx context.Context, config types.ReplicatorConfig) error {
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	query := `
		INSERT INTO replicator_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, source = EXCLUDED.source, destination = EXCLUDED.destination,
			filter = EXCLUDED.filter, bidirectional = EXCLUDED.bidirectional,
			suspended = EXCLUDED.suspended,
			last_metadata_modified = GREATEST(replicator_configs.last_metadata_modified, EXCLUDED.last_metadata_modified)
	`
	_, err := s.db.ExecContext(ctx, query,
		config.ID, config.Name, config.Source, config.Destination, config.Filter,
		config.Bidirectional, config.Suspended, config.LastMetadataModified)
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", config.ID, err)
	}
	return nil
}

func (s *Store) SaveLastMetadataModified(ctx context.Context, configID string, t time.Time) error {
	query := `UPDATE replicator_configs SET last_metadata_modified = $2 WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, configID, t)
	return execRequireRows(result, err, fmt.Errorf("config %s: %w", configID, store.ErrNotFound))
}
