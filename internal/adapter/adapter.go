// Package adapter defines the boundary between the replicator and the
// catalog sites it talks to. Dialect-specific implementations live outside
// this repository and are plugged in through a Registry.
package adapter

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go NodeAdapter,Factory

import (
	"context"
	"time"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// QueryRequest selects metadata on a site.
type QueryRequest struct {
	// CQL is the filter expression understood by the site.
	CQL string
	// ExcludedSites lists system names whose records must not be returned,
	// to avoid replicating a record back to where it came from.
	ExcludedSites []string
	// FailedItemIDs are re-requested regardless of ModifiedAfter.
	FailedItemIDs []string
	// ModifiedAfter restricts results to records modified after this time.
	// The zero time means no restriction.
	ModifiedAfter time.Time
}

// QueryResponse carries the records matching a QueryRequest.
type QueryResponse struct {
	Metadata []types.Metadata
}

// ResourceRequest asks a site for the resource of a record.
type ResourceRequest struct {
	Metadata types.Metadata
}

// ResourceResponse carries a resource read from a site. The caller closes
// Resource.Content.
type ResourceResponse struct {
	Resource types.Resource
}

// NodeAdapter is the only way the replicator touches a site. Every call may
// block on the network; implementations return *Error for recoverable
// failures and ErrInterrupted (or ctx.Err()) when the call was cancelled.
type NodeAdapter interface {
	IsAvailable(ctx context.Context) bool
	SystemName(ctx context.Context) (string, error)
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
	Exists(ctx context.Context, md types.Metadata) (bool, error)

	CreateRequest(ctx context.Context, mds []types.Metadata) (bool, error)
	UpdateRequest(ctx context.Context, mds []types.Metadata) (bool, error)
	DeleteRequest(ctx context.Context, mds []types.Metadata) (bool, error)

	CreateResource(ctx context.Context, resources []types.Resource) (bool, error)
	UpdateResource(ctx context.Context, resources []types.Resource) (bool, error)
	ReadResource(ctx context.Context, req ResourceRequest) (ResourceResponse, error)

	Close() error
}

// Factory builds adapters for sites.
type Factory interface {
	// Supports reports whether sites of this kind can be reached.
	Supports(kind string) bool
	// Create opens an adapter to site.
	Create(ctx context.Context, site types.Site) (NodeAdapter, error)
}
