// Package query polls a site for changed items and turns them into queued
// replication tasks.
package query

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
	"github.com/ChuLiYu/catalog-replicator/internal/queue"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// DefaultPeriod is used when neither the site nor the service sets one.
const DefaultPeriod = time.Minute

// Observer is told after every pass whether the site answered.
type Observer func(site string, available bool)

// Service polls one site on a fixed period.
type Service struct {
	site    types.Site
	adapter adapter.NodeAdapter
	queue   *queue.SiteQueue
	filters store.FilterManager
	indexes store.FilterIndexManager

	period   time.Duration
	log      *slog.Logger
	metrics  *metrics.Collector
	observer Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultPeriod sets the period used when the site has none.
func WithDefaultPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.period = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// New returns a stopped poller for site feeding q.
func New(site types.Site, a adapter.NodeAdapter, q *queue.SiteQueue,
	filters store.FilterManager, indexes store.FilterIndexManager, opts ...Option) *Service {
	s := &Service{
		site:    site,
		adapter: a,
		queue:   q,
		filters: filters,
		indexes: indexes,
		period:  DefaultPeriod,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if site.PollPeriod > 0 {
		s.period = site.PollPeriod
	}
	s.log = s.log.With("site", site.ID)
	return s
}

// Period returns the polling period in use.
func (s *Service) Period() time.Duration { return s.period }

// Start launches the polling loop. It polls once immediately.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
	s.log.Info("query service started", "period", s.period)
}

// Stop cancels the loop and waits for the current pass to end.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("query service stopped")
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		if err := s.Poll(ctx); err != nil {
			if errors.Is(err, queue.ErrClosed) {
				s.log.Info("queue closed, stopping poller")
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one pass over the non-suspended filters of the site, highest
// priority first. It returns an error only when the pass was interrupted or
// the queue was closed; every other failure is logged and skips the
// affected filter or site until the next pass.
func (s *Service) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("poll %s: %w", s.site.ID, adapter.ErrInterrupted)
	}

	available := s.adapter.IsAvailable(ctx)
	if s.observer != nil {
		s.observer(s.site.ID, available)
	}
	if !available {
		s.log.Debug("site unavailable, skipping poll")
		s.metrics.RecordPoll(s.site.ID, metrics.PollSkipped, 0)
		return nil
	}

	filters, err := s.filters.Filters(ctx, s.site.ID)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("poll %s: %w", s.site.ID, adapter.ErrInterrupted)
		}
		s.log.Error("failed to load filters", "error", err)
		s.metrics.RecordPoll(s.site.ID, metrics.PollError, 0)
		return nil
	}

	active := make([]types.Filter, 0, len(filters))
	for _, f := range filters {
		if !f.Suspended {
			active = append(active, f)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })

	found, failed := 0, false
	for _, f := range active {
		n, err := s.pollFilter(ctx, f)
		found += n
		if err != nil {
			if adapter.IsInterrupted(err) || errors.Is(err, queue.ErrClosed) {
				s.metrics.RecordPoll(s.site.ID, metrics.PollError, found)
				return err
			}
			failed = true
		}
	}

	result := metrics.PollOK
	if failed {
		result = metrics.PollError
	}
	s.metrics.RecordPoll(s.site.ID, result, found)
	return nil
}

// pollFilter queues everything f matches past its watermark and persists the
// watermark if it moved, also when the filter stopped half way.
func (s *Service) pollFilter(ctx context.Context, f types.Filter) (int, error) {
	log := s.log.With("filter", f.ID)

	idx, err := s.indexes.GetOrCreateIndex(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("filter %s: %w", f.ID, adapter.ErrInterrupted)
		}
		log.Error("failed to load watermark", "error", err)
		return 0, err
	}

	resp, err := s.adapter.Query(ctx, adapter.QueryRequest{
		CQL:           f.Query,
		ModifiedAfter: idx.ModifiedSince,
	})
	if err != nil {
		if adapter.IsInterrupted(err) || ctx.Err() != nil {
			return 0, fmt.Errorf("filter %s: %w", f.ID, adapter.ErrInterrupted)
		}
		log.Warn("query failed", "error", err)
		return 0, err
	}

	mds := resp.Metadata
	sort.SliceStable(mds, func(i, j int) bool {
		return mds[i].MetadataModified.Before(mds[j].MetadataModified)
	})

	queued := 0
	var putErr error
	for _, md := range mds {
		info := types.NewHarvestInfo(s.site.ID, f.Priority, md)
		if err := s.queue.Put(ctx, info); err != nil {
			putErr = err
			break
		}
		queued++
		s.metrics.RecordEnqueue(s.site.ID)
	}

	// A pass cut short must not move past records tied with the first one
	// left unqueued.
	if idx.Advance(types.Watermark(mds, queued)) {
		if err := s.indexes.SaveIndex(context.WithoutCancel(ctx), idx); err != nil {
			log.Error("failed to save watermark", "watermark", idx.ModifiedSince, "error", err)
		}
	}
	if queued > 0 {
		log.Debug("queued tasks", "count", queued, "watermark", idx.ModifiedSince)
	}

	switch {
	case putErr == nil:
		return queued, nil
	case errors.Is(putErr, queue.ErrClosed):
		return queued, putErr
	case ctx.Err() != nil:
		return queued, fmt.Errorf("filter %s: %w", f.ID, adapter.ErrInterrupted)
	default:
		log.Error("failed to queue task", "error", putErr)
		return queued, putErr
	}
}
