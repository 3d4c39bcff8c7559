// Package reconcile decides, per item, whether a destination needs a
// create, an update, a delete or nothing, applies the decision through the
// site adapters and records every attempt in the replication history.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/metrics"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ErrRejected is the cause recorded when an adapter answers false.
var ErrRejected = errors.New("request rejected by destination")

// Side is one end of a replication.
type Side struct {
	// Name identifies the site in the replication history.
	Name    string
	Adapter adapter.NodeAdapter
}

// Pair is a directed source to destination replication.
type Pair struct {
	Source      Side
	Destination Side
	ConfigID    string
	// CallTimeout bounds each adapter call. Zero means no bound beyond ctx.
	CallTimeout time.Duration
}

// Outcome describes what happened to one item.
type Outcome struct {
	Action types.Action
	Status types.Status
	// Skipped is set when the item needed nothing. No history is written.
	Skipped bool
	// Err is the adapter failure behind a FAILURE or CONNECTION_LOST status.
	Err error
}

// Reconciler applies the create/update/delete decision to single items.
type Reconciler struct {
	items   store.ReplicationItemManager
	log     *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a Reconciler recording history in items.
func New(items store.ReplicationItemManager, opts ...Option) *Reconciler {
	r := &Reconciler{
		items: items,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile brings md to the destination of pair.
//
// The returned error is reserved for interruption (matching
// adapter.IsInterrupted) and history persistence failures. Adapter failures
// are reported through the outcome.
func (r *Reconciler) Reconcile(ctx context.Context, pair Pair, md types.Metadata) (Outcome, error) {
	src, dst := pair.Source, pair.Destination
	log := r.log.With("item", md.ID, "source", src.Name, "destination", dst.Name)

	prior, err := r.items.LatestItem(ctx, md.ID, src.Name, dst.Name)
	if err != nil {
		return Outcome{}, fmt.Errorf("load history of %s: %w", md.ID, err)
	}

	item := types.ReplicationItem{
		ID:               uuid.NewString(),
		MetadataID:       md.ID,
		Source:           src.Name,
		Destination:      dst.Name,
		ConfigID:         pair.ConfigID,
		MetadataModified: md.MetadataModified,
		ResourceModified: md.ResourceModified,
		MetadataSize:     md.MetadataSize,
		ResourceSize:     md.ResourceSize,
		StartTime:        r.now(),
	}

	var (
		action  types.Action
		apply   func(context.Context) (bool, error)
		skipped bool
	)

	switch {
	case md.Deleted && prior != nil:
		action = types.ActionDelete
		apply = func(ctx context.Context) (bool, error) {
			return r.call(ctx, pair, func(c context.Context) (bool, error) {
				return dst.Adapter.DeleteRequest(c, []types.Metadata{md})
			})
		}

	default:
		exists := false
		if prior != nil {
			exists, err = r.call(ctx, pair, func(c context.Context) (bool, error) {
				return dst.Adapter.Exists(c, md)
			})
			if err != nil {
				action = types.ActionUpdate
				return r.finish(ctx, log, item, action, err, pair)
			}
		}

		if exists {
			action = types.ActionUpdate
			apply, skipped = r.planUpdate(pair, md, prior)
		} else {
			action = types.ActionCreate
			apply = r.planCreate(pair, md)
		}
	}

	if skipped {
		log.Debug("item unchanged, skipping")
		return Outcome{Action: action, Status: types.StatusSuccess, Skipped: true}, nil
	}

	ok, err := apply(ctx)
	if err == nil && !ok {
		err = ErrRejected
	}
	return r.finish(ctx, log, item, action, err, pair)
}

// planUpdate picks the update for an item the destination already holds. A
// prior attempt that did not succeed forces the update.
func (r *Reconciler) planUpdate(pair Pair, md types.Metadata, prior *types.ReplicationItem) (func(context.Context) (bool, error), bool) {
	retry := !prior.Succeeded()

	if md.HasResource() && (retry || md.ResourceModified.After(prior.ResourceModified)) {
		return func(ctx context.Context) (bool, error) {
			return r.transfer(ctx, pair, md, pair.Destination.Adapter.UpdateResource)
		}, false
	}
	if retry || md.MetadataModified.After(prior.MetadataModified) {
		return func(ctx context.Context) (bool, error) {
			return r.call(ctx, pair, func(c context.Context) (bool, error) {
				return pair.Destination.Adapter.UpdateRequest(c, []types.Metadata{md})
			})
		}, false
	}
	return nil, true
}

func (r *Reconciler) planCreate(pair Pair, md types.Metadata) func(context.Context) (bool, error) {
	if md.HasResource() {
		return func(ctx context.Context) (bool, error) {
			return r.transfer(ctx, pair, md, pair.Destination.Adapter.CreateResource)
		}
	}
	return func(ctx context.Context) (bool, error) {
		return r.call(ctx, pair, func(c context.Context) (bool, error) {
			return pair.Destination.Adapter.CreateRequest(c, []types.Metadata{md})
		})
	}
}

// transfer reads the resource of md from the source and hands it to put on
// the destination.
func (r *Reconciler) transfer(ctx context.Context, pair Pair, md types.Metadata,
	put func(context.Context, []types.Resource) (bool, error)) (bool, error) {

	var res types.Resource
	_, err := r.call(ctx, pair, func(c context.Context) (bool, error) {
		resp, err := pair.Source.Adapter.ReadResource(c, adapter.ResourceRequest{Metadata: md})
		if err != nil {
			return false, err
		}
		res = resp.Resource
		return true, nil
	})
	if err != nil {
		return false, err
	}
	defer res.Close()

	if res.Metadata.ID == "" {
		res.Metadata = md
	}
	return r.call(ctx, pair, func(c context.Context) (bool, error) {
		return put(c, []types.Resource{res})
	})
}

// call runs one adapter call bounded by the pair call timeout.
func (r *Reconciler) call(ctx context.Context, pair Pair, fn func(context.Context) (bool, error)) (bool, error) {
	if pair.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, pair.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

// finish classifies the attempt, saves it and builds the outcome.
func (r *Reconciler) finish(ctx context.Context, log *slog.Logger, item types.ReplicationItem,
	action types.Action, callErr error, pair Pair) (Outcome, error) {

	item.Action = action
	out := Outcome{Action: action, Err: callErr}

	if callErr != nil && interrupted(ctx, callErr) {
		item.Status = types.StatusFailure
		item.DoneTime = r.now()
		if err := r.items.SaveItem(context.WithoutCancel(ctx), item); err != nil {
			log.Error("failed to save interrupted attempt", "error", err)
		}
		r.metrics.RecordReconcile(action, item.Status)
		out.Status = item.Status
		return out, fmt.Errorf("%s %s: %w", action, item.MetadataID, adapter.ErrInterrupted)
	}

	switch {
	case callErr == nil:
		item.Status = types.StatusSuccess
	case !pair.Source.Adapter.IsAvailable(ctx) || !pair.Destination.Adapter.IsAvailable(ctx):
		item.Status = types.StatusConnectionLost
	default:
		item.Status = types.StatusFailure
	}
	item.DoneTime = r.now()
	out.Status = item.Status

	r.metrics.RecordReconcile(action, item.Status)
	if callErr != nil {
		log.Warn("replication attempt failed", "action", action, "status", item.Status, "error", callErr)
	} else {
		log.Debug("replicated item", "action", action)
	}

	if err := r.items.SaveItem(ctx, item); err != nil {
		return out, fmt.Errorf("save history of %s: %w", item.MetadataID, err)
	}
	return out, nil
}

// interrupted reports whether err came from the caller giving up rather than
// from the adapter call itself.
func interrupted(ctx context.Context, err error) bool {
	if adapter.IsInterrupted(err) {
		return true
	}
	return ctx.Err() != nil
}
