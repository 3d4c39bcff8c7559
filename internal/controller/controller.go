// ============================================================================
// Catalog Replicator Controller
// ============================================================================
//
// Package: internal/controller
// File: controller.go
// Purpose: owns one pipeline per remote site and keeps the set of pipelines
// in line with the configured sites
//
// Pipeline (one per supported remote site):
//
//   QueryService --Put--> SiteQueue --Take--> worker.Pool --> local site
//
// Loops:
//   1. Monitor Loop - every MonitorInterval re-reads the sites, creates
//      pipelines for new supported sites, resizes pools and tears down
//      pipelines of sites that disappeared or became unsupported
//   2. Sync Loop    - every SyncInterval runs reconcile.Syncer for each
//      active replicator config (disabled when SyncInterval is zero)
//
// Shutdown order: loops, pollers, pools, queues, adapters.
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/metrics"
	"github.com/ChuLiYu/catalog-replicator/internal/query"
	"github.com/ChuLiYu/catalog-replicator/internal/queue"
	"github.com/ChuLiYu/catalog-replicator/internal/reconcile"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/internal/worker"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ============================================================================
// Configuration
// ============================================================================

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("controller already started")
	// ErrStopped is returned when starting a stopped controller.
	ErrStopped = errors.New("controller stopped")
	// ErrNotStarted is returned by Refresh before Start.
	ErrNotStarted = errors.New("controller not started")
)

const (
	DefaultMonitorInterval = 30 * time.Second
	DefaultQueueCapacity   = 1000
	DefaultParallelism     = 4
)

// Config tunes the controller.
type Config struct {
	// LocalSite is the id of the site this replicator writes to. It never
	// gets a pipeline of its own.
	LocalSite        string
	LocalParallelism int
	QueueCapacity    int
	MonitorInterval  time.Duration
	// PollPeriod is the default polling period of sites without their own.
	PollPeriod time.Duration
	// SyncInterval enables the sync loop when positive.
	SyncInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.LocalParallelism <= 0 {
		c.LocalParallelism = DefaultParallelism
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.PollPeriod <= 0 {
		c.PollPeriod = query.DefaultPeriod
	}
	return c
}

// HealthReporter is told which sites answer.
type HealthReporter interface {
	SetSiteStatus(site string, available bool)
	RemoveSite(site string)
}

// Deps are the collaborators of the controller. Syncer, Metrics, Health
// and Logger are optional.
type Deps struct {
	Sites    store.SiteManager
	Filters  store.FilterManager
	Indexes  store.FilterIndexManager
	Configs  store.ConfigManager
	Adapters adapter.Factory
	Workers  *worker.Factory
	Syncer   *reconcile.Syncer
	Metrics  *metrics.Collector
	Health   HealthReporter
	Logger   *slog.Logger
}

// ============================================================================
// Data Structures
// ============================================================================

// pipeline is everything running for one remote site.
type pipeline struct {
	site    types.Site
	queue   *queue.SiteQueue
	pool    *worker.Pool
	poller  *query.Service
	adapter adapter.NodeAdapter
}

// SiteStatus is a point-in-time view of one pipeline.
type SiteStatus struct {
	Site       string        `json:"site"`
	Queued     int           `json:"queued"`
	Pending    int           `json:"pending"`
	Active     int           `json:"active"`
	Capacity   int           `json:"capacity"`
	Workers    int           `json:"workers"`
	Busy       int           `json:"busy"`
	PollPeriod time.Duration `json:"poll_period"`
}

// Controller runs the per-site pipelines.
type Controller struct {
	cfg    Config
	deps   Deps
	broker *queue.Broker
	log    *slog.Logger

	mu        sync.Mutex
	pipelines map[string]*pipeline
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
	loopWg    sync.WaitGroup
	startTime time.Time
}

// ============================================================================
// Lifecycle
// ============================================================================

// New returns a stopped controller.
func New(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:       cfg,
		deps:      deps,
		broker:    queue.NewBroker(cfg.QueueCapacity),
		log:       deps.Logger,
		pipelines: make(map[string]*pipeline),
	}
}

// Broker exposes the site queues, e.g. to the metrics queue collector.
func (c *Controller) Broker() *queue.Broker { return c.broker }

// Start evaluates the sites once and launches the loops. The loops run
// until Stop or until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.startTime = time.Now()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.Refresh(c.ctx); err != nil {
		c.log.Error("initial site evaluation failed", "error", err)
	}

	c.loopWg.Add(1)
	go c.monitorLoop()

	if c.cfg.SyncInterval > 0 && c.deps.Syncer != nil {
		c.loopWg.Add(1)
		go c.syncLoop()
	}

	c.log.Info("controller started",
		"local_site", c.cfg.LocalSite,
		"monitor_interval", c.cfg.MonitorInterval,
		"sync_interval", c.cfg.SyncInterval)
	return nil
}

// Stop ends the loops and tears every pipeline down. It is safe to call
// more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.loopWg.Wait()

	c.mu.Lock()
	pipelines := c.pipelines
	c.pipelines = make(map[string]*pipeline)
	c.mu.Unlock()

	for _, p := range pipelines {
		c.teardown(p)
	}
	c.broker.Close()

	c.log.Info("controller stopped", "uptime", time.Since(c.startTime))
}

// ============================================================================
// Monitor Loop
// ============================================================================

func (c *Controller) monitorLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.log.Info("monitor loop stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
				c.log.Error("site evaluation failed", "error", err)
			}
		}
	}
}

// Refresh brings the pipelines in line with the current sites. A site
// whose pipeline cannot be built is logged and retried on the next call.
func (c *Controller) Refresh(ctx context.Context) error {
	sites, err := c.deps.Sites.Sites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case !c.started:
		return ErrNotStarted
	}

	wanted := make(map[string]types.Site, len(sites))
	for _, site := range sites {
		if site.ID == c.cfg.LocalSite {
			continue
		}
		if !c.deps.Adapters.Supports(site.Kind) {
			c.log.Debug("site kind not supported", "site", site.ID, "kind", site.Kind)
			continue
		}
		wanted[site.ID] = site
	}

	for id, p := range c.pipelines {
		site, ok := wanted[id]
		if ok && sameEndpoint(site, p.site) {
			p.site = site
			continue
		}
		reason := "site removed or unsupported"
		if ok {
			reason = "site configuration changed"
		}
		c.log.Info("tearing down site pipeline", "site", id, "reason", reason)
		delete(c.pipelines, id)
		c.teardown(p)
	}

	var errs []error
	for id, site := range wanted {
		size := c.poolSize(site)
		if p, ok := c.pipelines[id]; ok {
			if err := p.pool.SetSize(ctx, size); err != nil {
				errs = append(errs, fmt.Errorf("resize pool of %s: %w", id, err))
			}
			continue
		}
		p, err := c.build(ctx, site, size)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.pipelines[id] = p
		c.log.Info("site pipeline started", "site", id, "workers", size, "poll_period", p.poller.Period())
	}
	return errors.Join(errs...)
}

// sameEndpoint reports whether a running pipeline can keep serving site.
// Name and parallelism changes are applied in place.
func sameEndpoint(a, b types.Site) bool {
	return a.URL == b.URL && a.Kind == b.Kind && a.PollPeriod == b.PollPeriod
}

// poolSize is the smaller of the local and the site parallelism. A site
// without its own parallelism gets the local one.
func (c *Controller) poolSize(site types.Site) int {
	if site.Parallelism > 0 && site.Parallelism < c.cfg.LocalParallelism {
		return site.Parallelism
	}
	return c.cfg.LocalParallelism
}

func (c *Controller) build(ctx context.Context, site types.Site, size int) (*pipeline, error) {
	a, err := c.deps.Adapters.Create(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("open site %s: %w", site.ID, err)
	}
	a = adapter.WithCachedName(a)

	q := c.broker.Queue(site.ID)
	pool, err := c.deps.Workers.New(ctx, site, q, size)
	if err != nil {
		c.broker.Remove(site.ID)
		_ = a.Close()
		return nil, fmt.Errorf("start workers for %s: %w", site.ID, err)
	}

	opts := []query.Option{
		query.WithDefaultPeriod(c.cfg.PollPeriod),
		query.WithLogger(c.log),
		query.WithMetrics(c.deps.Metrics),
	}
	if c.deps.Health != nil {
		opts = append(opts, query.WithObserver(c.deps.Health.SetSiteStatus))
	}
	poller := query.New(site, a, q, c.deps.Filters, c.deps.Indexes, opts...)
	poller.Start(c.ctx)

	return &pipeline{site: site, queue: q, pool: pool, poller: poller, adapter: a}, nil
}

// teardown stops a pipeline. Pending tasks are dropped; the watermarks and
// the history let the next pipeline of the site pick them up again.
func (c *Controller) teardown(p *pipeline) {
	id := p.site.ID
	p.poller.Stop()
	c.broker.Remove(id)
	p.pool.Shutdown()
	if err := p.adapter.Close(); err != nil {
		c.log.Warn("failed to close site adapter", "site", id, "error", err)
	}
	c.deps.Metrics.ForgetSite(id)
	if c.deps.Health != nil {
		c.deps.Health.RemoveSite(id)
	}
}

// ============================================================================
// Sync Loop
// ============================================================================

func (c *Controller) syncLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.log.Info("sync loop stopped")
			return
		case <-ticker.C:
			if _, err := c.SyncOnce(c.ctx); err != nil && c.ctx.Err() == nil {
				c.log.Error("sync pass failed", "error", err)
			}
		}
	}
}

// SyncOnce runs the syncer for every active replicator config. A failing
// config does not stop the others; an interruption does.
func (c *Controller) SyncOnce(ctx context.Context) ([]reconcile.Report, error) {
	if c.deps.Syncer == nil {
		return nil, nil
	}
	configs, err := c.deps.Configs.Configs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	var (
		reports []reconcile.Report
		errs    []error
	)
	for _, config := range configs {
		rs, err := c.deps.Syncer.Sync(ctx, config)
		reports = append(reports, rs...)
		for _, r := range rs {
			c.log.Info("sync report", "config", config.ID, "report", r.String())
		}
		if err != nil {
			if adapter.IsInterrupted(err) || ctx.Err() != nil {
				return reports, err
			}
			errs = append(errs, fmt.Errorf("config %s: %w", config.ID, err))
		}
	}
	return reports, errors.Join(errs...)
}

// ============================================================================
// Status
// ============================================================================

// Status returns one entry per running pipeline, ordered by site id.
func (c *Controller) Status() []SiteStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SiteStatus, 0, len(c.pipelines))
	for id, p := range c.pipelines {
		out = append(out, SiteStatus{
			Site:       id,
			Queued:     p.queue.Size(),
			Pending:    p.queue.PendingSize(),
			Active:     p.queue.ActiveSize(),
			Capacity:   p.queue.Capacity(),
			Workers:    p.pool.Size(),
			Busy:       p.pool.BusyCount(),
			PollPeriod: p.poller.Period(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}
