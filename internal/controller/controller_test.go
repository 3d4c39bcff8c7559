package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/reconcile"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/internal/worker"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

var (
	localSite = types.Site{ID: "local", URL: "home", Kind: memory.Kind}
	alphaSite = types.Site{ID: "a", URL: "alpha", Kind: memory.Kind, Parallelism: 2, PollPeriod: 10 * time.Millisecond}
)

// fakeHealth records what the controller reports.
type fakeHealth struct {
	mu      sync.Mutex
	status  map[string]bool
	removed []string
}

func (h *fakeHealth) SetSiteStatus(site string, available bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[site] = available
}

func (h *fakeHealth) RemoveSite(site string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.status, site)
	h.removed = append(h.removed, site)
}

func (h *fakeHealth) get(site string) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.status[site]
	return v, ok
}

type fixture struct {
	net    *memory.Network
	store  *store.Memory
	health *fakeHealth
	ctrl   *Controller
}

// createTestController wires a controller over an in-memory network with a
// local site "home" and one remote site "alpha".
func createTestController(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		net:    memory.NewNetwork(),
		store:  store.NewMemory(),
		health: &fakeHealth{status: make(map[string]bool)},
	}
	registry := adapter.NewRegistry()
	f.net.Register(registry)

	for _, s := range []types.Site{localSite, alphaSite} {
		if err := f.store.SaveSite(ctx, s); err != nil {
			t.Fatalf("save site %s: %v", s.ID, err)
		}
	}
	if err := f.store.SaveFilter(ctx, types.Filter{ID: "all", SiteID: alphaSite.ID, Query: "*", Priority: 5}); err != nil {
		t.Fatalf("save filter: %v", err)
	}

	reconciler := reconcile.New(f.store)
	workers := worker.NewFactory(worker.Deps{
		Sites:    f.store,
		Adapters: registry,
		Local: func(ctx context.Context) (adapter.NodeAdapter, error) {
			return registry.Create(ctx, localSite)
		},
		Reconciler: reconciler,
	}, worker.Config{OperationTimeout: time.Second, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})

	cfg.LocalSite = localSite.ID
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = time.Hour
	}
	f.ctrl = New(cfg, Deps{
		Sites:    f.store,
		Filters:  f.store,
		Indexes:  f.store,
		Configs:  f.store,
		Adapters: registry,
		Workers:  workers,
		Syncer:   reconcile.NewSyncer(f.store, f.store, f.store, registry, reconciler),
		Health:   f.health,
	})
	t.Cleanup(f.ctrl.Stop)
	return f
}

// waitFor polls check until it holds or timeout elapses.
func waitFor(t *testing.T, check func() bool, timeout time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return check()
}

func statusOf(c *Controller, site string) (SiteStatus, bool) {
	for _, s := range c.Status() {
		if s.Site == site {
			return s, true
		}
	}
	return SiteStatus{}, false
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestStartBuildsPipelinePerRemoteSite(t *testing.T) {
	f := createTestController(t, Config{LocalParallelism: 3})

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status := f.ctrl.Status()
	if len(status) != 1 {
		t.Fatalf("pipelines = %d, want 1 (local site excluded)", len(status))
	}
	if status[0].Site != alphaSite.ID {
		t.Errorf("site = %q, want %q", status[0].Site, alphaSite.ID)
	}
	if status[0].Workers != 2 {
		t.Errorf("workers = %d, want min(3, 2) = 2", status[0].Workers)
	}
	if status[0].PollPeriod != alphaSite.PollPeriod {
		t.Errorf("poll period = %v, want %v", status[0].PollPeriod, alphaSite.PollPeriod)
	}
	if _, ok := f.ctrl.Broker().Lookup(alphaSite.ID); !ok {
		t.Error("queue of site a not registered with the broker")
	}
}

func TestItemsFlowFromRemoteToLocal(t *testing.T) {
	f := createTestController(t, Config{LocalParallelism: 2})
	alpha, home := f.net.Node("alpha"), f.net.Node("home")
	for _, id := range []string{"m1", "m2", "m3"} {
		alpha.Put(types.Metadata{ID: id, Type: "record", MetadataModified: t0}, nil)
	}

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !waitFor(t, func() bool { return home.Len() == 3 }, 3*time.Second) {
		t.Fatalf("local site holds %d items, want 3", home.Len())
	}
	if available, ok := f.health.get(alphaSite.ID); !ok || !available {
		t.Errorf("health of site a = %v (reported %v), want available", available, ok)
	}

	history := f.store.History()
	for _, item := range history {
		if item.Source != "alpha" || item.Destination != "home" || item.Status != types.StatusSuccess {
			t.Errorf("unexpected history entry %+v", item)
		}
	}
}

func TestRefreshTearsDownRemovedSite(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.store.DeleteSite(ctx, alphaSite.ID); err != nil {
		t.Fatalf("delete site: %v", err)
	}
	if err := f.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if n := len(f.ctrl.Status()); n != 0 {
		t.Errorf("pipelines = %d, want 0", n)
	}
	if _, ok := f.ctrl.Broker().Lookup(alphaSite.ID); ok {
		t.Error("queue of removed site still registered")
	}
	if len(f.health.removed) != 1 || f.health.removed[0] != alphaSite.ID {
		t.Errorf("health removals = %v, want [a]", f.health.removed)
	}
}

func TestUnsupportedSiteIsIgnored(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()
	if err := f.store.SaveSite(ctx, types.Site{ID: "csw", URL: "elsewhere", Kind: "csw"}); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, ok := statusOf(f.ctrl, "csw"); ok {
		t.Error("pipeline built for a site kind without adapter")
	}

	// becoming unsupported tears the pipeline down
	changed := alphaSite
	changed.Kind = "csw"
	if err := f.store.SaveSite(ctx, changed); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := f.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := statusOf(f.ctrl, alphaSite.ID); ok {
		t.Error("pipeline of a site that became unsupported still running")
	}
}

func TestRefreshResizesPool(t *testing.T) {
	f := createTestController(t, Config{LocalParallelism: 4})
	ctx := context.Background()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before, _ := f.ctrl.Broker().Lookup(alphaSite.ID)

	changed := alphaSite
	changed.Parallelism = 1
	if err := f.store.SaveSite(ctx, changed); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := f.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	st, ok := statusOf(f.ctrl, alphaSite.ID)
	if !ok {
		t.Fatal("pipeline of site a missing")
	}
	if st.Workers != 1 {
		t.Errorf("workers = %d, want 1", st.Workers)
	}
	after, _ := f.ctrl.Broker().Lookup(alphaSite.ID)
	if before != after {
		t.Error("resize rebuilt the pipeline instead of resizing it")
	}

	// a site without its own parallelism gets the local one
	changed.Parallelism = 0
	if err := f.store.SaveSite(ctx, changed); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := f.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st, _ := statusOf(f.ctrl, alphaSite.ID); st.Workers != 4 {
		t.Errorf("workers = %d, want 4", st.Workers)
	}
}

func TestEndpointChangeRebuildsPipeline(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before, _ := f.ctrl.Broker().Lookup(alphaSite.ID)

	moved := alphaSite
	moved.URL = "alpha-2"
	if err := f.store.SaveSite(ctx, moved); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := f.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	after, ok := f.ctrl.Broker().Lookup(alphaSite.ID)
	if !ok || after == before {
		t.Error("pipeline not rebuilt after the site moved")
	}
}

func TestMonitorLoopPicksUpNewSites(t *testing.T) {
	f := createTestController(t, Config{MonitorInterval: 10 * time.Millisecond})
	ctx := context.Background()
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.store.SaveSite(ctx, types.Site{ID: "b", URL: "beta", Kind: memory.Kind}); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if !waitFor(t, func() bool { _, ok := statusOf(f.ctrl, "b"); return ok }, 2*time.Second) {
		t.Fatal("monitor loop did not build a pipeline for site b")
	}
}

func TestStartStopStates(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Refresh(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Refresh before Start = %v, want ErrNotStarted", err)
	}
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.ctrl.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	f.ctrl.Stop()
	f.ctrl.Stop()

	if n := len(f.ctrl.Status()); n != 0 {
		t.Errorf("pipelines after Stop = %d, want 0", n)
	}
	if n := len(f.ctrl.Broker().Queues()); n != 0 {
		t.Errorf("queues after Stop = %d, want 0", n)
	}
	if err := f.ctrl.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
	if err := f.ctrl.Refresh(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Refresh after Stop = %v, want ErrStopped", err)
	}
}

// ============================================================================
// Sync Tests
// ============================================================================

func TestSyncOnceRunsEveryActiveConfig(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()
	alpha, home := f.net.Node("alpha"), f.net.Node("home")
	alpha.Put(types.Metadata{ID: "m1", Type: "record", MetadataModified: t0}, nil)

	if err := f.store.SaveConfig(ctx, types.ReplicatorConfig{ID: "c1", Source: "a", Destination: "local"}); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := f.store.SaveConfig(ctx, types.ReplicatorConfig{ID: "c2", Source: "a", Destination: "nope", Suspended: true}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	reports, err := f.ctrl.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if reports[0].Processed != 1 || reports[0].Actions[types.ActionCreate] != 1 {
		t.Errorf("report = %s, want one create", reports[0])
	}
	if home.Len() != 1 {
		t.Errorf("local site holds %d items, want 1", home.Len())
	}
}

func TestSyncOnceKeepsGoingAfterFailure(t *testing.T) {
	f := createTestController(t, Config{})
	ctx := context.Background()
	f.net.Node("alpha").Put(types.Metadata{ID: "m1", Type: "record", MetadataModified: t0}, nil)

	if err := f.store.SaveConfig(ctx, types.ReplicatorConfig{ID: "broken", Source: "a", Destination: "nope"}); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := f.store.SaveConfig(ctx, types.ReplicatorConfig{ID: "ok", Source: "a", Destination: "local"}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	reports, err := f.ctrl.SyncOnce(ctx)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SyncOnce error = %v, want store.ErrNotFound", err)
	}
	if len(reports) != 1 || reports[0].ConfigID != "ok" {
		t.Errorf("reports = %v, want the one of config ok", reports)
	}
}
