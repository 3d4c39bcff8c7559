// Package store defines the persistence collaborators of the replicator and
// an in-memory implementation. A PostgreSQL implementation lives in
// internal/store/sqlstore.
package store

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go SiteManager,FilterManager,FilterIndexManager,ReplicationItemManager,ConfigManager

import (
	"context"
	"errors"
	"time"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// SiteManager persists the known sites.
type SiteManager interface {
	Sites(ctx context.Context) ([]types.Site, error)
	// Site returns ErrNotFound for an unknown id.
	Site(ctx context.Context, id string) (types.Site, error)
	SaveSite(ctx context.Context, site types.Site) error
	DeleteSite(ctx context.Context, id string) error
}

// FilterManager persists the filters of each site.
type FilterManager interface {
	// Filters returns every filter of a site, suspended ones included.
	Filters(ctx context.Context, siteID string) ([]types.Filter, error)
	SaveFilter(ctx context.Context, filter types.Filter) error
}

// FilterIndexManager persists filter watermarks.
type FilterIndexManager interface {
	// GetOrCreateIndex returns the watermark of filter, creating a zero one
	// on first use.
	GetOrCreateIndex(ctx context.Context, filter types.Filter) (types.FilterIndex, error)
	SaveIndex(ctx context.Context, index types.FilterIndex) error
}

// ReplicationItemManager persists the replication history.
type ReplicationItemManager interface {
	// LatestItem returns the most recent entry for the item between source
	// and destination, or nil when there is none.
	LatestItem(ctx context.Context, metadataID, source, destination string) (*types.ReplicationItem, error)
	SaveItem(ctx context.Context, item types.ReplicationItem) error
	// FailureList returns the ids of items whose latest entry between source
	// and destination did not succeed.
	FailureList(ctx context.Context, source, destination string) ([]string, error)
}

// ConfigManager persists replicator configs.
type ConfigManager interface {
	// Configs returns the configs that are not suspended.
	Configs(ctx context.Context) ([]types.ReplicatorConfig, error)
	SaveConfig(ctx context.Context, config types.ReplicatorConfig) error
	SaveLastMetadataModified(ctx context.Context, configID string, t time.Time) error
}

// Store groups every manager.
type Store interface {
	SiteManager
	FilterManager
	FilterIndexManager
	ReplicationItemManager
	ConfigManager
	Close() error
}
