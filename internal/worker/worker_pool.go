// ============================================================================
// Catalog Replicator Worker Pool
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Purpose: resizable set of workers consuming one site queue
//
// Lifecycle:
//   1. Factory.New(site, queue, size) - build a pool and start size workers
//   2. SetSize(n)                     - grow or shrink while running
//   3. Shutdown()                     - interrupt every worker and wait
//
// Shrinking:
//   Idle workers (blocked in Take) are cancelled first. Only when not
//   enough of them are idle are busy workers interrupted; their tasks are
//   unlocked and go back to the front of the queue.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/queue"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrPoolShutdown is returned when resizing a pool that was shut down.
	ErrPoolShutdown = errors.New("worker pool is shut down")
	// ErrNoLocalSite is returned by a Factory without a local adapter opener.
	ErrNoLocalSite = errors.New("no local site adapter configured")
)

// ============================================================================
// Pool
// ============================================================================

// Pool runs the workers of one site.
type Pool struct {
	site  string
	queue *queue.SiteQueue
	deps  Deps
	cfg   Config
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inflight *inflight

	mu       sync.Mutex
	workers  []*Worker
	seq      int
	shutdown bool
	wg       sync.WaitGroup
}

// inflight holds the IDs of the tasks the pool's workers are processing.
// The queue keeps every version of a record, so the same ID can be leased
// twice; only one worker may reconcile it at a time.
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{ids: make(map[string]struct{})}
}

// acquire claims id and reports false when another worker holds it.
func (f *inflight) acquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.ids[id]; held {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

func newPool(site string, q *queue.SiteQueue, deps Deps, cfg Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		site:     site,
		queue:    q,
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With("site", site),
		ctx:      ctx,
		cancel:   cancel,
		inflight: newInflight(),
	}
}

// Site returns the site the pool consumes.
func (p *Pool) Site() string { return p.site }

// SetSize grows or shrinks the pool to n workers. Growing stops at the
// first local adapter that cannot be opened and returns its error.
func (p *Pool) SetSize(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrPoolShutdown
	}
	p.pruneLocked()

	cur := len(p.workers)
	var err error
	switch {
	case n > cur:
		err = p.growLocked(ctx, n-cur)
	case n < cur:
		p.shrinkLocked(cur - n)
	}

	p.deps.Metrics.SetPoolSize(p.site, len(p.workers))
	if len(p.workers) != cur {
		p.log.Info("worker pool resized", "from", cur, "to", len(p.workers))
	}
	return err
}

func (p *Pool) growLocked(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		local, err := p.deps.Local(ctx)
		if err != nil {
			return fmt.Errorf("open local adapter for %s: %w", p.site, err)
		}

		p.seq++
		w := newWorker(fmt.Sprintf("%s-worker-%d", p.site, p.seq), p.queue, adapter.WithCachedName(local), p.inflight, p.deps, p.cfg)
		wctx, cancel := context.WithCancel(p.ctx)
		w.cancel = cancel
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer cancel()
			w.run(wctx)
		}()
	}
	return nil
}

// shrinkLocked removes count workers, idle ones first.
func (p *Pool) shrinkLocked(count int) {
	kept := p.workers[:0]
	for _, w := range p.workers {
		if count > 0 && w.CancelIfIdle() {
			count--
			continue
		}
		kept = append(kept, w)
	}
	for count > 0 && len(kept) > 0 {
		last := kept[len(kept)-1]
		last.Interrupt()
		kept = kept[:len(kept)-1]
		count--
	}
	p.workers = kept
}

// pruneLocked forgets workers that exited on their own, e.g. after the queue
// was closed.
func (p *Pool) pruneLocked() {
	kept := p.workers[:0]
	for _, w := range p.workers {
		select {
		case <-w.Done():
		default:
			kept = append(kept, w)
		}
	}
	p.workers = kept
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	return len(p.workers)
}

// BusyCount returns how many workers hold a task right now.
func (p *Pool) BusyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.workers {
		if w.Busy() {
			n++
		}
	}
	return n
}

// Shutdown interrupts every worker, including those removed by an earlier
// shrink, and waits for them to exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.shutdown {
		p.shutdown = true
		for _, w := range p.workers {
			w.Interrupt()
		}
		p.workers = nil
		p.cancel()
		p.deps.Metrics.SetPoolSize(p.site, 0)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("worker pool shut down")
}

// ============================================================================
// Factory
// ============================================================================

// Factory builds pools sharing the same dependencies.
type Factory struct {
	deps Deps
	cfg  Config
}

// NewFactory returns a Factory. A nil logger falls back to slog.Default.
func NewFactory(deps Deps, cfg Config) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps, cfg: cfg.withDefaults()}
}

// New builds a pool for site consuming q and starts size workers.
func (f *Factory) New(ctx context.Context, site types.Site, q *queue.SiteQueue, size int) (*Pool, error) {
	if f.deps.Local == nil {
		return nil, ErrNoLocalSite
	}
	p := newPool(site.ID, q, f.deps, f.cfg)
	if err := p.SetSize(ctx, size); err != nil {
		p.Shutdown()
		return nil, err
	}
	return p, nil
}
