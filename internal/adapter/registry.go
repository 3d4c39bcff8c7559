package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// Constructor opens an adapter for one site.
type Constructor func(ctx context.Context, site types.Site) (NodeAdapter, error)

// Registry is a Factory dispatching on Site.Kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Constructor)}
}

// Register makes sites of kind reachable through ctor, replacing any
// previous constructor for that kind.
func (r *Registry) Register(kind string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = ctor
}

// Kinds lists the registered kinds in order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Supports(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

func (r *Registry) Create(ctx context.Context, site types.Site) (NodeAdapter, error) {
	r.mu.RLock()
	ctor, ok := r.kinds[site.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("site %s kind %q: %w", site.ID, site.Kind, ErrUnsupportedKind)
	}
	a, err := ctor(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("open adapter for site %s: %w", site.ID, err)
	}
	return a, nil
}
