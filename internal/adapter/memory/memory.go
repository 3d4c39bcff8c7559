// Package memory implements an in-process catalog node. It backs the
// "memory" site kind, the demo command and the end-to-end tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// Kind is the site kind served by this package.
const Kind = "memory"

var (
	// ErrUnavailable is returned by every call while the node is offline.
	ErrUnavailable = errors.New("site unavailable")
	// ErrClosed is returned by calls on a closed handle.
	ErrClosed = errors.New("adapter closed")
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")
)

// Node is an in-memory catalog.
type Node struct {
	name string

	mu        sync.Mutex
	records   map[string]types.Metadata
	resources map[string][]byte
	failures  map[string]error
	rejects   map[string]bool
	calls     map[string]int
	latency   time.Duration

	available atomic.Bool
}

// NewNode returns an empty, available node with the given system name.
func NewNode(name string) *Node {
	n := &Node{
		name:      name,
		records:   make(map[string]types.Metadata),
		resources: make(map[string][]byte),
		failures:  make(map[string]error),
		rejects:   make(map[string]bool),
		calls:     make(map[string]int),
	}
	n.available.Store(true)
	return n
}

// Name returns the system name of the node.
func (n *Node) Name() string { return n.name }

// Put stores a record and, when content is not nil, its resource.
func (n *Node) Put(md types.Metadata, content []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if md.Source == "" {
		md.Source = n.name
	}
	n.records[md.ID] = md
	if content != nil {
		n.resources[md.ID] = append([]byte(nil), content...)
	}
}

// Remove drops a record without leaving a tombstone.
func (n *Node) Remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.records, id)
	delete(n.resources, id)
}

// Record returns a stored record.
func (n *Node) Record(id string) (types.Metadata, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	md, ok := n.records[id]
	return md, ok
}

// Resource returns the stored content of a record's resource.
func (n *Node) Resource(id string) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.resources[id]
	return b, ok
}

// Len returns the number of stored records.
func (n *Node) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}

// SetAvailable takes the node on or offline.
func (n *Node) SetAvailable(v bool) { n.available.Store(v) }

// SetLatency delays every call by d.
func (n *Node) SetLatency(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latency = d
}

// FailOn makes every call of op return err until cleared with a nil err.
func (n *Node) FailOn(op string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failures, op)
		return
	}
	n.failures[op] = err
}

// Reject makes op report false (not accepted) without an error.
func (n *Node) Reject(op string, v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejects[op] = v
}

// Calls returns how many times op was invoked.
func (n *Node) Calls(op string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[op]
}

// Handle opens an adapter onto the node.
func (n *Node) Handle() *Handle {
	return &Handle{node: n}
}

// enter records a call of op and applies latency, availability and injected
// failures.
func (n *Node) enter(ctx context.Context, op string) error {
	n.mu.Lock()
	n.calls[op]++
	latency := n.latency
	injected := n.failures[op]
	n.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s on %s: %w", op, n.name, adapter.ErrInterrupted)
		}
		return adapter.NewError(op, n.name, err)
	}
	if !n.available.Load() {
		return adapter.NewError(op, n.name, ErrUnavailable)
	}
	if injected != nil {
		return adapter.NewError(op, n.name, injected)
	}
	return nil
}

func (n *Node) rejected(op string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rejects[op]
}

// Handle is a NodeAdapter onto a Node. Closing a handle leaves the node
// intact.
type Handle struct {
	node   *Node
	closed atomic.Bool
}

var _ adapter.NodeAdapter = (*Handle)(nil)

// Closed reports whether Close was called.
func (h *Handle) Closed() bool { return h.closed.Load() }

func (h *Handle) enter(ctx context.Context, op string) error {
	if h.closed.Load() {
		return adapter.NewError(op, h.node.name, ErrClosed)
	}
	return h.node.enter(ctx, op)
}

func (h *Handle) IsAvailable(ctx context.Context) bool {
	h.node.mu.Lock()
	h.node.calls["IsAvailable"]++
	h.node.mu.Unlock()
	return !h.closed.Load() && ctx.Err() == nil && h.node.available.Load()
}

func (h *Handle) SystemName(ctx context.Context) (string, error) {
	if err := h.enter(ctx, "SystemName"); err != nil {
		return "", err
	}
	return h.node.name, nil
}

func (h *Handle) Query(ctx context.Context, req adapter.QueryRequest) (adapter.QueryResponse, error) {
	if err := h.enter(ctx, "Query"); err != nil {
		return adapter.QueryResponse{}, err
	}

	excluded := make(map[string]bool, len(req.ExcludedSites))
	for _, s := range req.ExcludedSites {
		excluded[s] = true
	}
	failed := make(map[string]bool, len(req.FailedItemIDs))
	for _, id := range req.FailedItemIDs {
		failed[id] = true
	}

	n := h.node
	n.mu.Lock()
	out := make([]types.Metadata, 0, len(n.records))
	for _, md := range n.records {
		if excluded[md.Source] || !matches(req.CQL, md) {
			continue
		}
		if failed[md.ID] || req.ModifiedAfter.IsZero() || md.MetadataModified.After(req.ModifiedAfter) {
			out = append(out, md)
		}
	}
	n.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return adapter.QueryResponse{Metadata: out}, nil
}

func (h *Handle) Exists(ctx context.Context, md types.Metadata) (bool, error) {
	if err := h.enter(ctx, "Exists"); err != nil {
		return false, err
	}
	stored, ok := h.node.Record(md.ID)
	return ok && !stored.Deleted, nil
}

func (h *Handle) CreateRequest(ctx context.Context, mds []types.Metadata) (bool, error) {
	return h.store(ctx, "CreateRequest", mds)
}

func (h *Handle) UpdateRequest(ctx context.Context, mds []types.Metadata) (bool, error) {
	return h.store(ctx, "UpdateRequest", mds)
}

func (h *Handle) DeleteRequest(ctx context.Context, mds []types.Metadata) (bool, error) {
	if err := h.enter(ctx, "DeleteRequest"); err != nil {
		return false, err
	}
	if h.node.rejected("DeleteRequest") {
		return false, nil
	}
	for _, md := range mds {
		h.node.Remove(md.ID)
	}
	return true, nil
}

func (h *Handle) CreateResource(ctx context.Context, resources []types.Resource) (bool, error) {
	return h.storeResources(ctx, "CreateResource", resources)
}

func (h *Handle) UpdateResource(ctx context.Context, resources []types.Resource) (bool, error) {
	return h.storeResources(ctx, "UpdateResource", resources)
}

func (h *Handle) ReadResource(ctx context.Context, req adapter.ResourceRequest) (adapter.ResourceResponse, error) {
	if err := h.enter(ctx, "ReadResource"); err != nil {
		return adapter.ResourceResponse{}, err
	}
	md, ok := h.node.Record(req.Metadata.ID)
	content, hasContent := h.node.Resource(req.Metadata.ID)
	if !ok || !hasContent {
		return adapter.ResourceResponse{}, adapter.NewError("ReadResource", h.node.name,
			fmt.Errorf("resource of %s: %w", req.Metadata.ID, ErrNotFound))
	}
	return adapter.ResourceResponse{Resource: types.Resource{
		ID:       md.ID,
		Name:     md.ID,
		URI:      md.ResourceURI,
		Size:     int64(len(content)),
		Modified: md.ResourceModified,
		Content:  io.NopCloser(bytes.NewReader(content)),
		Metadata: md,
	}}, nil
}

func (h *Handle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *Handle) store(ctx context.Context, op string, mds []types.Metadata) (bool, error) {
	if err := h.enter(ctx, op); err != nil {
		return false, err
	}
	if h.node.rejected(op) {
		return false, nil
	}
	for _, md := range mds {
		h.node.Put(md, nil)
	}
	return true, nil
}

func (h *Handle) storeResources(ctx context.Context, op string, resources []types.Resource) (bool, error) {
	if err := h.enter(ctx, op); err != nil {
		return false, err
	}
	if h.node.rejected(op) {
		return false, nil
	}
	for _, r := range resources {
		var content []byte
		if r.Content != nil {
			b, err := io.ReadAll(r.Content)
			if err != nil {
				return false, adapter.NewError(op, h.node.name, err)
			}
			content = b
		}
		h.node.Put(r.Metadata, content)
	}
	return true, nil
}

// matches implements the small query language of the node: an empty
// expression or "*" selects everything, "type = 'x'" selects a record type
// and any other expression must appear among the record tags.
func matches(cql string, md types.Metadata) bool {
	cql = strings.TrimSpace(cql)
	if cql == "" || cql == "*" {
		return true
	}
	if field, value, ok := strings.Cut(cql, "="); ok && strings.TrimSpace(field) == "type" {
		return strings.Trim(strings.TrimSpace(value), "'\"") == md.Type
	}
	for _, tag := range md.Tags {
		if tag == cql {
			return true
		}
	}
	return false
}
