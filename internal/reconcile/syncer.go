package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ErrSiteUnavailable is returned by a job whose source or destination does
// not answer.
var ErrSiteUnavailable = errors.New("site unavailable")

// Report summarises one direction of a sync.
type Report struct {
	ConfigID    string
	Source      string
	Destination string
	Processed   int
	Skipped     int
	Actions     map[types.Action]int
	Statuses    map[types.Status]int
	// Watermark is the latest metadata modification time processed. A run
	// cut short stops it below any record tied with the first one left.
	Watermark time.Time
}

func newReport(configID, source, destination string) Report {
	return Report{
		ConfigID:    configID,
		Source:      source,
		Destination: destination,
		Actions:     make(map[types.Action]int),
		Statuses:    make(map[types.Status]int),
	}
}

// Failed returns how many attempts did not succeed.
func (r Report) Failed() int {
	return r.Statuses[types.StatusFailure] + r.Statuses[types.StatusConnectionLost]
}

func (r Report) String() string {
	return fmt.Sprintf("%s -> %s: processed=%d skipped=%d created=%d updated=%d deleted=%d failed=%d",
		r.Source, r.Destination, r.Processed, r.Skipped,
		r.Actions[types.ActionCreate], r.Actions[types.ActionUpdate], r.Actions[types.ActionDelete], r.Failed())
}

// Syncer runs whole-pair reconciliation for replicator configs without a
// queue in between.
type Syncer struct {
	sites       store.SiteManager
	configs     store.ConfigManager
	items       store.ReplicationItemManager
	factory     adapter.Factory
	reconciler  *Reconciler
	log         *slog.Logger
	callTimeout time.Duration
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

func WithSyncLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCallTimeout bounds each adapter call made during a sync.
func WithCallTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) { s.callTimeout = d }
}

func NewSyncer(sites store.SiteManager, configs store.ConfigManager, items store.ReplicationItemManager,
	factory adapter.Factory, reconciler *Reconciler, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		sites:      sites,
		configs:    configs,
		items:      items,
		factory:    factory,
		reconciler: reconciler,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync replicates everything config selects that changed since its
// watermark, in both directions for bidirectional configs, and persists the
// advanced watermark. A failed direction never advances it.
func (s *Syncer) Sync(ctx context.Context, config types.ReplicatorConfig) ([]Report, error) {
	src, err := s.open(ctx, config.Source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := s.open(ctx, config.Destination)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	jobs := []*Job{s.job(config, src, dst)}
	if config.Bidirectional {
		jobs = append(jobs, s.job(config, dst, src))
	}

	// Both directions share one watermark, so it may only move as far as
	// the direction that got least far. A direction that failed or never
	// ran holds it where it was; one that found nothing does not hold it.
	var (
		reports   []Report
		runErr    error
		watermark time.Time
		bounded   bool
	)
	bound := func(t time.Time) {
		if !bounded || t.Before(watermark) {
			watermark = t
		}
		bounded = true
	}
	for _, job := range jobs {
		if runErr != nil {
			bound(config.LastMetadataModified)
			continue
		}
		report, err := job.Run(ctx)
		if report.Source != "" {
			reports = append(reports, report)
		}
		switch {
		case err != nil:
			runErr = err
			bound(config.LastMetadataModified)
		case report.Processed > 0:
			// failed items are retried regardless of their age
			if report.Watermark.After(config.LastMetadataModified) {
				bound(report.Watermark)
			} else {
				bound(config.LastMetadataModified)
			}
		}
	}

	if bounded && watermark.After(config.LastMetadataModified) {
		if err := s.configs.SaveLastMetadataModified(context.WithoutCancel(ctx), config.ID, watermark); err != nil {
			return reports, errors.Join(runErr, fmt.Errorf("save watermark of config %s: %w", config.ID, err))
		}
	}
	return reports, runErr
}

func (s *Syncer) open(ctx context.Context, siteID string) (adapter.NodeAdapter, error) {
	site, err := s.sites.Site(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("resolve site %s: %w", siteID, err)
	}
	a, err := s.factory.Create(ctx, site)
	if err != nil {
		return nil, err
	}
	return adapter.WithCachedName(a), nil
}

func (s *Syncer) job(config types.ReplicatorConfig, src, dst adapter.NodeAdapter) *Job {
	return &Job{
		config:      config,
		source:      src,
		destination: dst,
		items:       s.items,
		reconciler:  s.reconciler,
		log:         s.log,
		callTimeout: s.callTimeout,
	}
}

// Job is one direction of a sync.
type Job struct {
	config      types.ReplicatorConfig
	source      adapter.NodeAdapter
	destination adapter.NodeAdapter
	items       store.ReplicationItemManager
	reconciler  *Reconciler
	log         *slog.Logger
	callTimeout time.Duration
}

// Run queries the source for changed and previously failed items, excluding
// those that originated at the destination, and reconciles each of them.
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.source.IsAvailable(ctx) || !j.destination.IsAvailable(ctx) {
		return Report{}, fmt.Errorf("sync %s: %w", j.config.ID, ErrSiteUnavailable)
	}

	srcName, err := j.source.SystemName(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sync %s: source name: %w", j.config.ID, err)
	}
	dstName, err := j.destination.SystemName(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sync %s: destination name: %w", j.config.ID, err)
	}

	report := newReport(j.config.ID, srcName, dstName)
	log := j.log.With("config", j.config.ID, "source", srcName, "destination", dstName)

	failed, err := j.items.FailureList(ctx, srcName, dstName)
	if err != nil {
		return report, fmt.Errorf("sync %s: failure list: %w", j.config.ID, err)
	}

	resp, err := j.source.Query(ctx, adapter.QueryRequest{
		CQL:           j.config.Filter,
		ExcludedSites: []string{dstName},
		FailedItemIDs: failed,
		ModifiedAfter: j.config.LastMetadataModified,
	})
	if err != nil {
		return report, fmt.Errorf("sync %s: query: %w", j.config.ID, err)
	}

	mds := resp.Metadata
	sort.SliceStable(mds, func(a, b int) bool {
		return mds[a].MetadataModified.Before(mds[b].MetadataModified)
	})

	pair := Pair{
		Source:      Side{Name: srcName, Adapter: j.source},
		Destination: Side{Name: dstName, Adapter: j.destination},
		ConfigID:    j.config.ID,
		CallTimeout: j.callTimeout,
	}
	for _, md := range mds {
		if err := ctx.Err(); err != nil {
			report.Watermark = types.Watermark(mds, report.Processed)
			return report, fmt.Errorf("sync %s: %w", j.config.ID, adapter.ErrInterrupted)
		}

		out, err := j.reconciler.Reconcile(ctx, pair, md)
		if err != nil {
			report.Watermark = types.Watermark(mds, report.Processed)
			return report, fmt.Errorf("sync %s: %w", j.config.ID, err)
		}

		report.Processed++
		report.Watermark = md.MetadataModified
		if out.Skipped {
			report.Skipped++
			continue
		}
		report.Actions[out.Action]++
		report.Statuses[out.Status]++
	}

	log.Info("sync finished",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed())
	return report, nil
}
