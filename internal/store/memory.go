package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/catalog-replicator/internal/snapshot"
	"github.com/ChuLiYu/catalog-replicator/internal/storage/wal"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// DefaultCompactEvery is the number of journal records after which the
// store writes a fresh snapshot and empties the journal.
const DefaultCompactEvery = 1000

type itemKey struct {
	metadataID  string
	source      string
	destination string
}

type configWatermark struct {
	ConfigID string    `json:"config_id"`
	Time     time.Time `json:"time"`
}

// Memory is a Store held in memory. When opened from disk every mutation is
// journaled before it is applied, and the journal is folded into a
// snapshot every compactEvery records.
type Memory struct {
	mu      sync.RWMutex
	sites   map[string]types.Site
	filters map[string]types.Filter
	indexes map[string]types.FilterIndex
	items   []types.ReplicationItem
	latest  map[itemKey]int
	configs map[string]types.ReplicatorConfig

	snapshot     *snapshot.Manager
	journal      *wal.WAL
	compactEvery int
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty, unpersisted store.
func NewMemory() *Memory {
	return &Memory{
		sites:   make(map[string]types.Site),
		filters: make(map[string]types.Filter),
		indexes: make(map[string]types.FilterIndex),
		latest:  make(map[itemKey]int),
		configs: make(map[string]types.ReplicatorConfig),
	}
}

// MemoryOption configures a persisted Memory store.
type MemoryOption func(*Memory)

// WithCompactEvery sets how many journal records trigger a snapshot.
func WithCompactEvery(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.compactEvery = n
		}
	}
}

// OpenMemory recovers a store from the snapshot at path and the journal at
// path+".wal", and keeps it persisted there.
//
// Recovery:
//  1. load the snapshot (empty on first start)
//  2. replay journal records newer than the snapshot
func OpenMemory(path string, opts ...MemoryOption) (*Memory, error) {
	mgr := snapshot.NewManager(path)
	data, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	m := NewMemory()
	m.compactEvery = DefaultCompactEvery
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range data.Sites {
		m.sites[s.ID] = s
	}
	for _, f := range data.Filters {
		m.filters[f.ID] = f
	}
	for _, idx := range data.Indexes {
		m.indexes[idx.FilterID] = idx
	}
	for _, item := range data.Items {
		m.appendItem(item)
	}
	for _, c := range data.Configs {
		m.configs[c.ID] = c
	}

	journal, err := wal.Open(path+".wal", wal.Options{SyncOnAppend: true, BaseSeq: data.LastSeq})
	if err != nil {
		return nil, fmt.Errorf("open store journal %s: %w", path, err)
	}
	if err := journal.Replay(data.LastSeq, m.replay); err != nil {
		journal.Close()
		return nil, fmt.Errorf("replay store journal %s: %w", path, err)
	}

	m.snapshot = mgr
	m.journal = journal
	return m, nil
}

// replay applies one recovered journal record.
func (m *Memory) replay(e wal.Event) error {
	switch e.Type {
	case wal.EventSiteSaved:
		var s types.Site
		if err := e.Decode(&s); err != nil {
			return err
		}
		m.sites[s.ID] = s
	case wal.EventSiteDeleted:
		var id string
		if err := e.Decode(&id); err != nil {
			return err
		}
		delete(m.sites, id)
	case wal.EventFilterSaved:
		var f types.Filter
		if err := e.Decode(&f); err != nil {
			return err
		}
		m.filters[f.ID] = f
	case wal.EventIndexSaved:
		var idx types.FilterIndex
		if err := e.Decode(&idx); err != nil {
			return err
		}
		m.applyIndex(idx)
	case wal.EventItemSaved:
		var item types.ReplicationItem
		if err := e.Decode(&item); err != nil {
			return err
		}
		m.appendItem(item)
	case wal.EventConfigSaved:
		var c types.ReplicatorConfig
		if err := e.Decode(&c); err != nil {
			return err
		}
		m.applyConfig(c)
	case wal.EventConfigAdvanced:
		var w configWatermark
		if err := e.Decode(&w); err != nil {
			return err
		}
		if c, ok := m.configs[w.ConfigID]; ok {
			c.LastMetadataModified = w.Time
			m.configs[w.ConfigID] = c
		}
	default:
		return fmt.Errorf("unknown journal record %s at seq=%d", e.Type, e.Seq)
	}
	return nil
}

// ============================================================================
// Sites
// ============================================================================

func (m *Memory) Sites(ctx context.Context) ([]types.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Site(ctx context.Context, id string) (types.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return types.Site{}, fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *Memory) SaveSite(ctx context.Context, site types.Site) error {
	if site.ID == "" {
		return fmt.Errorf("save site: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(wal.EventSiteSaved, site, func() { m.sites[site.ID] = site })
}

func (m *Memory) DeleteSite(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[id]; !ok {
		return fmt.Errorf("delete site %s: %w", id, ErrNotFound)
	}
	return m.commitLocked(wal.EventSiteDeleted, id, func() { delete(m.sites, id) })
}

// ============================================================================
// Filters and watermarks
// ============================================================================

func (m *Memory) Filters(ctx context.Context, siteID string) ([]types.Filter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Filter
	for _, f := range m.filters {
		if f.SiteID == siteID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveFilter(ctx context.Context, filter types.Filter) error {
	if filter.ID == "" {
		filter.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(wal.EventFilterSaved, filter, func() { m.filters[filter.ID] = filter })
}

func (m *Memory) GetOrCreateIndex(ctx context.Context, filter types.Filter) (types.FilterIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[filter.ID]
	if ok {
		return idx, nil
	}
	idx = types.FilterIndex{FilterID: filter.ID}
	return idx, m.commitLocked(wal.EventIndexSaved, idx, func() { m.indexes[filter.ID] = idx })
}

// SaveIndex stores the watermark unless a later one is already stored.
func (m *Memory) SaveIndex(ctx context.Context, index types.FilterIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !index.ModifiedSince.After(m.indexes[index.FilterID].ModifiedSince) {
		return nil
	}
	return m.commitLocked(wal.EventIndexSaved, index, func() { m.applyIndex(index) })
}

func (m *Memory) applyIndex(index types.FilterIndex) {
	cur := m.indexes[index.FilterID]
	cur.FilterID = index.FilterID
	cur.Advance(index.ModifiedSince)
	m.indexes[index.FilterID] = cur
}

// ============================================================================
// Replication history
// ============================================================================

func (m *Memory) LatestItem(ctx context.Context, metadataID, source, destination string) (*types.ReplicationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.latest[itemKey{metadataID, source, destination}]
	if !ok {
		return nil, nil
	}
	item := m.items[i]
	return &item, nil
}

func (m *Memory) SaveItem(ctx context.Context, item types.ReplicationItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(wal.EventItemSaved, item, func() { m.appendItem(item) })
}

func (m *Memory) FailureList(ctx context.Context, source, destination string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for key, i := range m.latest {
		if key.source == source && key.destination == destination && !m.items[i].Succeeded() {
			out = append(out, key.metadataID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// History returns every saved entry in save order.
func (m *Memory) History() []types.ReplicationItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.ReplicationItem(nil), m.items...)
}

func (m *Memory) appendItem(item types.ReplicationItem) {
	m.items = append(m.items, item)
	m.latest[itemKey{item.MetadataID, item.Source, item.Destination}] = len(m.items) - 1
}

// ============================================================================
// Configs
// ============================================================================

func (m *Memory) Configs(ctx context.Context) ([]types.ReplicatorConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.ReplicatorConfig
	for _, c := range m.configs {
		if !c.Suspended {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveConfig(ctx context.Context, config types.ReplicatorConfig) error {
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(wal.EventConfigSaved, config, func() { m.applyConfig(config) })
}

// applyConfig stores config without moving its watermark backwards.
func (m *Memory) applyConfig(config types.ReplicatorConfig) {
	if cur, ok := m.configs[config.ID]; ok && cur.LastMetadataModified.After(config.LastMetadataModified) {
		config.LastMetadataModified = cur.LastMetadataModified
	}
	m.configs[config.ID] = config
}

func (m *Memory) SaveLastMetadataModified(ctx context.Context, configID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[configID]
	if !ok {
		return fmt.Errorf("config %s: %w", configID, ErrNotFound)
	}
	return m.commitLocked(wal.EventConfigAdvanced, configWatermark{ConfigID: configID, Time: t}, func() {
		c.LastMetadataModified = t
		m.configs[configID] = c
	})
}

// Close writes a final snapshot and closes the journal, if any.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.journal == nil {
		return nil
	}
	err := m.compactLocked()
	if cerr := m.journal.Close(); err == nil {
		err = cerr
	}
	m.journal = nil
	return err
}

// commitLocked journals a mutation, then applies it. Caller holds m.mu.
func (m *Memory) commitLocked(eventType wal.EventType, payload any, apply func()) error {
	if m.journal == nil {
		apply()
		return nil
	}
	if _, err := m.journal.Append(eventType, payload); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	apply()
	if m.journal.Len() >= m.compactEvery {
		if err := m.compactLocked(); err != nil {
			return fmt.Errorf("persist store: %w", err)
		}
	}
	return nil
}

// compactLocked writes a snapshot covering the whole journal and empties
// it. Caller holds m.mu.
func (m *Memory) compactLocked() error {
	data := snapshot.Data{
		LastSeq: m.journal.LastSeq(),
		Items:   append([]types.ReplicationItem(nil), m.items...),
	}
	for _, s := range m.sites {
		data.Sites = append(data.Sites, s)
	}
	for _, f := range m.filters {
		data.Filters = append(data.Filters, f)
	}
	for _, idx := range m.indexes {
		data.Indexes = append(data.Indexes, idx)
	}
	for _, c := range m.configs {
		data.Configs = append(data.Configs, c)
	}
	if err := m.snapshot.Write(data); err != nil {
		return err
	}
	return m.journal.Reset()
}
