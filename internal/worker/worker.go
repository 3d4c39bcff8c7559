// ============================================================================
// Catalog Replicator Worker
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Purpose: single consumer of a site queue
//
// Loop:
//   Take -> classify -> claim ID -> resolve remote site -> availability
//        -> existence -> reconcile -> Complete / Fail / Unlock
//
// The task's site is the source of the replication and the worker's own
// local adapter the destination. A task still held when the worker is
// interrupted is unlocked, never left leased.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/metrics"
	"github.com/ChuLiYu/catalog-replicator/internal/queue"
	"github.com/ChuLiYu/catalog-replicator/internal/reconcile"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	DefaultOperationTimeout = 30 * time.Second
	DefaultInitialBackoff   = 100 * time.Millisecond
	DefaultMaxBackoff       = 30 * time.Second
)

// Config tunes every worker built by a Factory.
type Config struct {
	// OperationTimeout bounds each adapter call. Zero disables the bound.
	OperationTimeout time.Duration
	// InitialBackoff and MaxBackoff pace a worker after a give-back or a
	// retryable failure.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		OperationTimeout: DefaultOperationTimeout,
		InitialBackoff:   DefaultInitialBackoff,
		MaxBackoff:       DefaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// LocalOpener opens the adapter of the local site. Every worker gets its own.
type LocalOpener func(ctx context.Context) (adapter.NodeAdapter, error)

// Deps are the collaborators shared by all workers of a Factory.
type Deps struct {
	Sites      store.SiteManager
	Adapters   adapter.Factory
	Local      LocalOpener
	Reconciler *reconcile.Reconciler
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// ============================================================================
// Worker
// ============================================================================

const (
	stateIdle int32 = iota
	stateBusy
	stateCancelled
)

// Worker consumes one site queue until cancelled or the queue closes.
type Worker struct {
	name  string
	owner *queue.Owner
	queue *queue.SiteQueue
	local adapter.NodeAdapter
	deps  Deps
	cfg   Config
	log   *slog.Logger

	inflight *inflight

	state   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}
	backoff *backoff.ExponentialBackOff

	// remote is reused while the site configuration stays the same.
	remoteMu   sync.Mutex
	remote     adapter.NodeAdapter
	remoteSite types.Site
}

func newWorker(name string, q *queue.SiteQueue, local adapter.NodeAdapter, held *inflight, deps Deps, cfg Config) *Worker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	return &Worker{
		name:     name,
		owner:    queue.NewOwner(name),
		queue:    q,
		local:    local,
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With("worker", name, "site", q.Site()),
		inflight: held,
		done:     make(chan struct{}),
		backoff:  b,
	}
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Busy reports whether the worker currently holds a task.
func (w *Worker) Busy() bool { return w.state.Load() == stateBusy }

// Done is closed once the loop has exited and the local adapter is closed.
func (w *Worker) Done() <-chan struct{} { return w.done }

// CancelIfIdle stops the worker only if it is waiting for a task. It
// reports whether the worker was cancelled.
func (w *Worker) CancelIfIdle() bool {
	if !w.state.CompareAndSwap(stateIdle, stateCancelled) {
		return false
	}
	w.cancel()
	return true
}

// Interrupt stops the worker even in the middle of a task. The task is
// unlocked.
func (w *Worker) Interrupt() {
	w.state.Store(stateCancelled)
	w.cancel()
}

// run is the main loop. It must be started once, with cancel set.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.closeAdapters()

	w.log.Debug("worker started")
	for {
		if ctx.Err() != nil {
			w.log.Debug("worker stopped")
			return
		}

		task, err := w.queue.Take(ctx, w.owner)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && ctx.Err() == nil {
				w.log.Error("take failed", "error", err)
			}
			w.log.Debug("worker stopped", "reason", err)
			return
		}

		// A cancel that won the race against Take gives the task straight back.
		if !w.state.CompareAndSwap(stateIdle, stateBusy) {
			w.release(task, "unlock", task.Unlock(w.owner))
			return
		}

		res := w.process(ctx, task)
		w.state.CompareAndSwap(stateBusy, stateIdle)

		switch res {
		case resultStop:
			return
		case resultPaced:
			if !w.pause(ctx) {
				return
			}
		default:
			w.backoff.Reset()
		}
	}
}

type result int

const (
	resultDone result = iota
	resultPaced
	resultStop
)

// process handles one leased task and always leaves it completed, failed or
// unlocked.
func (w *Worker) process(ctx context.Context, task *queue.Task) result {
	log := w.log.With("task", task.ID(), "attempt", task.Attempts())
	site := task.Site()

	info := task.Info()
	md, ok := info.Record()
	if !info.Supported() || !ok {
		log.Warn("unsupported task, giving it back", "operation", info.Operation)
		w.release(task, "unlock", task.Unlock(w.owner))
		w.deps.Metrics.RecordTask(site, metrics.OutcomeReturned, task.Duration())
		return resultPaced
	}

	// An older version of the same record is still being reconciled.
	if !w.inflight.acquire(task.ID()) {
		log.Debug("task in progress on another worker, giving it back")
		w.release(task, "unlock", task.Unlock(w.owner))
		w.deps.Metrics.RecordTask(site, metrics.OutcomeReturned, task.Duration())
		return resultPaced
	}
	defer w.inflight.release(task.ID())

	remote, err := w.resolve(ctx, site)
	if err != nil {
		w.release(task, "unlock", task.Unlock(w.owner))
		w.deps.Metrics.RecordTask(site, metrics.OutcomeReturned, task.Duration())
		if ctx.Err() != nil {
			return resultStop
		}
		log.Warn("cannot resolve site, giving task back", "error", err)
		return resultPaced
	}

	if !w.local.IsAvailable(ctx) || !remote.IsAvailable(ctx) {
		if ctx.Err() != nil {
			return w.interrupted(task)
		}
		return w.fail(log, task, queue.CodeSiteUnavailable, "site unavailable")
	}

	srcName, err := remote.SystemName(ctx)
	if err == nil {
		var dstName string
		dstName, err = w.local.SystemName(ctx)
		if err == nil {
			return w.replicate(ctx, log, task, md, reconcile.Pair{
				Source:      reconcile.Side{Name: srcName, Adapter: remote},
				Destination: reconcile.Side{Name: dstName, Adapter: w.local},
				CallTimeout: w.cfg.OperationTimeout,
			})
		}
	}
	if adapter.IsInterrupted(err) || ctx.Err() != nil {
		return w.interrupted(task)
	}
	return w.fail(log, task, queue.CodeSiteUnavailable, err.Error())
}

func (w *Worker) replicate(ctx context.Context, log *slog.Logger, task *queue.Task,
	md types.Metadata, pair reconcile.Pair) result {

	if !md.Deleted {
		exists, err := w.exists(ctx, pair.Source.Adapter, md)
		switch {
		case err != nil && (adapter.IsInterrupted(err) || ctx.Err() != nil):
			return w.interrupted(task)
		case err != nil && adapter.IsTimeout(err):
			return w.fail(log, task, queue.CodeSiteTimeout, err.Error())
		case err != nil:
			return w.fail(log, task, queue.CodeOperationFailure, err.Error())
		case !exists:
			return w.fail(log, task, queue.CodeNoLongerExists, "item no longer exists at source")
		}
	}

	out, err := w.deps.Reconciler.Reconcile(ctx, pair, md)
	if err != nil {
		if adapter.IsInterrupted(err) || ctx.Err() != nil {
			return w.interrupted(task)
		}
		return w.fail(log, task, queue.CodeOperationFailure, err.Error())
	}

	switch {
	case out.Skipped || out.Status == types.StatusSuccess:
		w.release(task, "complete", task.Complete(w.owner))
		w.deps.Metrics.RecordTask(task.Site(), metrics.OutcomeCompleted, task.Duration())
		log.Debug("task completed", "action", out.Action, "skipped", out.Skipped)
		return resultDone
	case out.Status == types.StatusConnectionLost:
		return w.fail(log, task, queue.CodeSiteUnavailable, reason(out))
	case adapter.IsTimeout(out.Err):
		return w.fail(log, task, queue.CodeSiteTimeout, reason(out))
	default:
		return w.fail(log, task, queue.CodeOperationFailure, reason(out))
	}
}

func reason(out reconcile.Outcome) string {
	if out.Err == nil {
		return string(out.Status)
	}
	return fmt.Sprintf("%s %s: %v", out.Action, out.Status, out.Err)
}

func (w *Worker) exists(ctx context.Context, a adapter.NodeAdapter, md types.Metadata) (bool, error) {
	if w.cfg.OperationTimeout <= 0 {
		return a.Exists(ctx, md)
	}
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.OperationTimeout)
	defer cancel()
	return a.Exists(callCtx, md)
}

func (w *Worker) fail(log *slog.Logger, task *queue.Task, code queue.ErrorCode, why string) result {
	w.release(task, "fail", task.Fail(w.owner, code, why))

	outcome := metrics.OutcomeFailed
	if code.Retryable() {
		outcome = metrics.OutcomeRetried
		log.Warn("task failed, retrying later", "code", code, "reason", why)
	} else {
		log.Error("task failed", "code", code, "reason", why)
	}
	w.deps.Metrics.RecordTask(task.Site(), outcome, task.Duration())

	if code.Retryable() {
		return resultPaced
	}
	return resultDone
}

func (w *Worker) interrupted(task *queue.Task) result {
	w.release(task, "unlock", task.Unlock(w.owner))
	w.deps.Metrics.RecordTask(task.Site(), metrics.OutcomeReturned, task.Duration())
	w.log.Debug("interrupted, task given back", "task", task.ID())
	return resultStop
}

// release logs a rejected task transition. It never happens unless the
// ownership bookkeeping is broken.
func (w *Worker) release(task *queue.Task, op string, err error) {
	if err != nil {
		w.log.Error("task transition rejected", "task", task.ID(), "op", op, "error", err)
	}
}

// pause waits the next backoff interval. It returns false when cancelled.
func (w *Worker) pause(ctx context.Context) bool {
	d := w.backoff.NextBackOff()
	if d == backoff.Stop {
		d = w.cfg.MaxBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// resolve returns the adapter of site, reopening it when the site
// configuration changed.
func (w *Worker) resolve(ctx context.Context, siteID string) (adapter.NodeAdapter, error) {
	site, err := w.deps.Sites.Site(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load site %s: %w", siteID, err)
	}

	w.remoteMu.Lock()
	defer w.remoteMu.Unlock()

	if w.remote != nil && w.remoteSite == site {
		return w.remote, nil
	}
	if w.remote != nil {
		_ = w.remote.Close()
		w.remote = nil
	}

	a, err := w.deps.Adapters.Create(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("open site %s: %w", siteID, err)
	}
	w.remote = adapter.WithCachedName(a)
	w.remoteSite = site
	return w.remote, nil
}

func (w *Worker) closeAdapters() {
	w.remoteMu.Lock()
	if w.remote != nil {
		if err := w.remote.Close(); err != nil {
			w.log.Warn("failed to close remote adapter", "error", err)
		}
		w.remote = nil
	}
	w.remoteMu.Unlock()

	if err := w.local.Close(); err != nil {
		w.log.Warn("failed to close local adapter", "error", err)
	}
}
