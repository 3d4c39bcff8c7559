package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// Network resolves sites of the memory kind to nodes, creating a node the
// first time a site is opened.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Node)}
}

// Node returns the node registered under key, creating it if needed.
func (nw *Network) Node(key string) *Node {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	n, ok := nw.nodes[key]
	if !ok {
		n = NewNode(key)
		nw.nodes[key] = n
	}
	return n
}

// Keys returns the registered node keys in order.
func (nw *Network) Keys() []string {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	keys := make([]string, 0, len(nw.nodes))
	for k := range nw.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open is an adapter.Constructor. Sites are keyed by URL, falling back to
// the site name.
func (nw *Network) Open(ctx context.Context, site types.Site) (adapter.NodeAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := site.URL
	if key == "" {
		key = site.Name
	}
	if key == "" {
		return nil, fmt.Errorf("open memory site %s: no url or name", site.ID)
	}
	return nw.Node(key).Handle(), nil
}

// Register installs the network under Kind in r.
func (nw *Network) Register(r *adapter.Registry) {
	r.Register(Kind, nw.Open)
}
