// ============================================================================
// Replicator metrics - Prometheus
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
//
// Counters:
//   replicator_tasks_enqueued_total{site}
//   replicator_tasks_total{site,outcome}      completed|failed|retried|returned
//   replicator_reconcile_total{action,status}
//   replicator_polls_total{site,result}       ok|error|skipped
//   replicator_poll_items_total{site}
//
// Histograms:
//   replicator_task_duration_seconds{site}    first queued -> terminal
//
// Gauges:
//   replicator_pool_workers{site}
//   replicator_queue_{size,pending,active,capacity}{site}   (QueueCollector)
//
// Every Record method is safe on a nil *Collector so components can run
// without metrics.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// Task outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
	OutcomeReturned  = "returned"
)

// Poll results.
const (
	PollOK      = "ok"
	PollError   = "error"
	PollSkipped = "skipped"
)

// Collector holds the replicator metrics.
type Collector struct {
	tasksEnqueued *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	reconcile     *prometheus.CounterVec
	polls         *prometheus.CounterVec
	pollItems     *prometheus.CounterVec
	poolWorkers   *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		tasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicator_tasks_enqueued_total",
			Help: "Total number of tasks put on a site queue",
		}, []string{"site"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicator_tasks_total",
			Help: "Task hand-backs by site and outcome",
		}, []string{"site", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "replicator_task_duration_seconds",
			Help:    "Time from first queueing to a terminal state",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicator_reconcile_total",
			Help: "Reconciliation attempts by action and status",
		}, []string{"action", "status"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicator_polls_total",
			Help: "Polling passes by site and result",
		}, []string{"site", "result"}),
		pollItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replicator_poll_items_total",
			Help: "Items discovered by polling",
		}, []string{"site"}),
		poolWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replicator_pool_workers",
			Help: "Current worker pool size per site",
		}, []string{"site"}),
	}

	reg.MustRegister(
		c.tasksEnqueued,
		c.tasks,
		c.taskDuration,
		c.reconcile,
		c.polls,
		c.pollItems,
		c.poolWorkers,
	)
	return c
}

// RecordEnqueue counts a task put on the queue of site.
func (c *Collector) RecordEnqueue(site string) {
	if c == nil {
		return
	}
	c.tasksEnqueued.WithLabelValues(site).Inc()
}

// RecordTask counts a task hand-back. Terminal outcomes also observe the
// task duration.
func (c *Collector) RecordTask(site, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(site, outcome).Inc()
	if outcome == OutcomeCompleted || outcome == OutcomeFailed {
		c.taskDuration.WithLabelValues(site).Observe(d.Seconds())
	}
}

// RecordReconcile counts one reconciliation attempt.
func (c *Collector) RecordReconcile(action types.Action, status types.Status) {
	if c == nil {
		return
	}
	c.reconcile.WithLabelValues(string(action), string(status)).Inc()
}

// RecordPoll counts a polling pass and the items it found.
func (c *Collector) RecordPoll(site, result string, found int) {
	if c == nil {
		return
	}
	c.polls.WithLabelValues(site, result).Inc()
	if found > 0 {
		c.pollItems.WithLabelValues(site).Add(float64(found))
	}
}

// SetPoolSize records the worker count of a site.
func (c *Collector) SetPoolSize(site string, n int) {
	if c == nil {
		return
	}
	c.poolWorkers.WithLabelValues(site).Set(float64(n))
}

// ForgetSite drops the per-site pool gauge of a torn-down site.
func (c *Collector) ForgetSite(site string) {
	if c == nil {
		return
	}
	c.poolWorkers.DeleteLabelValues(site)
}

// Server serves /metrics until its context is done.
type Server struct {
	srv *http.Server
}

// NewServer exposes g on addr.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run blocks serving until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
