package worker

// ============================================================================
// Worker Pool Test File
// Purpose: verify replication, give-back, failure mapping, resizing and
// shutdown of site queue consumers
// ============================================================================

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter"
	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/metrics"
	"github.com/ChuLiYu/catalog-replicator/internal/queue"
	"github.com/ChuLiYu/catalog-replicator/internal/reconcile"
	"github.com/ChuLiYu/catalog-replicator/internal/store"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

var site = types.Site{ID: "s1", URL: "alpha", Kind: memory.Kind}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	remote  *memory.Node
	local   *memory.Node
	store   *store.Memory
	reg     *prometheus.Registry
	factory *Factory
	queue   *queue.SiteQueue

	mu      sync.Mutex
	handles []*memory.Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	net := memory.NewNetwork()
	registry := adapter.NewRegistry()
	net.Register(registry)

	f := &fixture{
		remote: net.Node("alpha"),
		local:  memory.NewNode("home"),
		store:  store.NewMemory(),
		reg:    prometheus.NewRegistry(),
		queue:  queue.New(site.ID, 10),
	}
	require.NoError(t, f.store.SaveSite(context.Background(), site))

	f.factory = NewFactory(Deps{
		Sites:      f.store,
		Adapters:   registry,
		Local:      f.openLocal,
		Reconciler: reconcile.New(f.store),
		Metrics:    metrics.NewCollector(f.reg),
	}, Config{
		OperationTimeout: time.Second,
		InitialBackoff:   5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
	})
	return f
}

func (f *fixture) openLocal(context.Context) (adapter.NodeAdapter, error) {
	h := f.local.Handle()
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fixture) localHandles() []*memory.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*memory.Handle(nil), f.handles...)
}

// publish stores md on the remote node and queues the stored copy.
func (f *fixture) publish(t *testing.T, md types.Metadata) {
	t.Helper()
	f.remote.Put(md, nil)
	stored, ok := f.remote.Record(md.ID)
	require.True(t, ok)
	require.NoError(t, f.queue.Put(context.Background(), types.NewHarvestInfo(site.ID, 5, stored)))
}

func (f *fixture) pool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := f.factory.New(context.Background(), site, f.queue, size)
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

// tasks reads a task counter, zero when it was never incremented.
func (f *fixture) tasks(outcome string) float64 {
	families, err := f.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != "replicator_tasks_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["site"] == site.ID && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// takeBack leases the next pending task to the test once the pool is gone.
func (f *fixture) takeBack(t *testing.T) (*queue.Task, *queue.Owner) {
	t.Helper()
	owner := queue.NewOwner("test")
	task, err := f.queue.Poll(context.Background(), owner, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, task)
	return task, owner
}

// logBuffer collects worker log output; workers write from their own
// goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs routes the logs of pools built afterwards into a buffer.
func (f *fixture) captureLogs() *logBuffer {
	logs := &logBuffer{}
	f.factory.deps.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logs
}

func record(id string) types.Metadata {
	return types.Metadata{ID: id, Type: "record", MetadataModified: t0, Raw: []byte(id)}
}

// ============================================================================
// Task Processing Tests
// ============================================================================

func TestWorkerReplicatesTask(t *testing.T) {
	f := newFixture(t)
	f.publish(t, record("m1"))

	p := f.pool(t, 1)
	assert.Equal(t, 1, p.Size())

	require.Eventually(t, func() bool {
		return f.local.Len() == 1 && f.queue.Size() == 0
	}, 2*time.Second, 5*time.Millisecond)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, types.ActionCreate, history[0].Action)
	assert.Equal(t, types.StatusSuccess, history[0].Status)
	assert.Equal(t, "alpha", history[0].Source)
	assert.Equal(t, "home", history[0].Destination)

	got, ok := f.local.Record("m1")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Source)
	assert.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeCompleted) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestUnsupportedTaskIsGivenBack(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.queue.Put(context.Background(), types.TaskInfo{
		ID:        "s1/clip",
		Priority:  5,
		Operation: types.OperationHarvest,
		Metadata:  []types.MetadataInfo{types.OpaqueInfo{ID: "clip", PayloadType: "video"}},
	}))

	p := f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeReturned) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Shutdown()

	task, _ := f.takeBack(t)
	assert.Equal(t, "s1/clip", task.ID())
	assert.Equal(t, 0, task.Attempts())
	assert.Empty(t, f.store.History())
}

func TestUnknownSiteGivesTaskBack(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.DeleteSite(context.Background(), site.ID))
	f.publish(t, record("m1"))

	p := f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeReturned) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Shutdown()

	task, _ := f.takeBack(t)
	assert.Equal(t, 0, task.Attempts())
	assert.Equal(t, 0, f.local.Len())
}

func TestUnavailableSiteFailsRetryably(t *testing.T) {
	f := newFixture(t)
	f.publish(t, record("m1"))
	f.remote.SetAvailable(false)

	logs := f.captureLogs()
	p := f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeRetried) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Shutdown()

	// the failure code is checked before the task is leased again, which
	// clears it
	assert.Contains(t, logs.String(), "code="+string(queue.CodeSiteUnavailable))
	assert.Zero(t, f.tasks(metrics.OutcomeFailed), "unavailability must not fail the task terminally")
	assert.Equal(t, 1, f.queue.PendingSize())

	task, _ := f.takeBack(t)
	assert.GreaterOrEqual(t, task.Attempts(), 1)
	assert.Equal(t, 0, f.local.Len())
}

func TestVanishedItemFailsTerminally(t *testing.T) {
	f := newFixture(t)
	f.publish(t, record("m1"))
	f.remote.Remove("m1")

	f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.queue.Size() == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeFailed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.local.Len())
	assert.Empty(t, f.store.History())
}

func TestUpstreamDeletionSkipsExistenceCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	md := record("m1")
	md.Source = "alpha"
	f.local.Put(md, nil)
	require.NoError(t, f.store.SaveItem(ctx, types.ReplicationItem{
		MetadataID: "m1", Source: "alpha", Destination: "home",
		Action: types.ActionCreate, Status: types.StatusSuccess,
	}))

	md.Deleted = true
	require.NoError(t, f.queue.Put(ctx, types.NewHarvestInfo(site.ID, 5, md)))

	f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.queue.Size() == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, f.remote.Calls("Exists"))
	assert.Equal(t, 1, f.local.Calls("DeleteRequest"))
	assert.Equal(t, 0, f.local.Len())
}

func TestRejectedCreateIsRetried(t *testing.T) {
	f := newFixture(t)
	f.publish(t, record("m1"))
	f.local.Reject("CreateRequest", true)

	f.pool(t, 1)
	require.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeRetried) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	f.local.Reject("CreateRequest", false)
	require.Eventually(t, func() bool {
		return f.local.Len() == 1 && f.queue.Size() == 0
	}, 2*time.Second, 5*time.Millisecond)

	history := f.store.History()
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, types.StatusFailure, history[0].Status)
	assert.Equal(t, types.StatusSuccess, history[len(history)-1].Status)
}

func TestDuplicateTaskIsReconciledOnce(t *testing.T) {
	f := newFixture(t)
	f.remote.SetLatency(50 * time.Millisecond)
	f.publish(t, record("m1"))
	f.publish(t, record("m1"))
	require.Equal(t, 2, f.queue.Size())

	f.pool(t, 2)
	require.Eventually(t, func() bool {
		return f.local.Len() == 1 && f.queue.Size() == 0
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.local.Calls("CreateRequest"), "both versions of m1 went down the create path")
	assert.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeCompleted) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestInflightClaims(t *testing.T) {
	held := newInflight()

	assert.True(t, held.acquire("s1/m1"))
	assert.False(t, held.acquire("s1/m1"), "a held ID must not be claimed twice")
	assert.True(t, held.acquire("s1/m2"))

	held.release("s1/m1")
	assert.True(t, held.acquire("s1/m1"))
}

// ============================================================================
// Pool Sizing Tests
// ============================================================================

func TestShrinkPrefersIdleWorkers(t *testing.T) {
	f := newFixture(t)
	f.remote.SetLatency(150 * time.Millisecond)
	f.publish(t, record("m1"))

	p := f.pool(t, 2)
	require.Eventually(t, func() bool { return p.BusyCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.SetSize(context.Background(), 1))
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 1, p.BusyCount())

	// the busy worker was kept and finishes its transfer
	require.Eventually(t, func() bool {
		return f.local.Len() == 1 && f.queue.Size() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.tasks(metrics.OutcomeCompleted) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestShrinkInterruptsBusyWorker(t *testing.T) {
	f := newFixture(t)
	f.remote.SetLatency(10 * time.Second)
	f.publish(t, record("m1"))

	p := f.pool(t, 1)
	require.Eventually(t, func() bool { return p.BusyCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.SetSize(context.Background(), 0))
	assert.Equal(t, 0, p.Size())

	require.Eventually(t, func() bool {
		return f.queue.PendingSize() == 1 && f.queue.ActiveSize() == 0
	}, 2*time.Second, 5*time.Millisecond)

	task, _ := f.takeBack(t)
	assert.Equal(t, 0, task.Attempts())
	assert.Equal(t, 0, f.local.Len())
}

func TestGrowAndSameSize(t *testing.T) {
	f := newFixture(t)
	p := f.pool(t, 1)

	require.NoError(t, p.SetSize(context.Background(), 3))
	assert.Equal(t, 3, p.Size())
	require.NoError(t, p.SetSize(context.Background(), 3))
	assert.Equal(t, 3, p.Size())
	assert.Len(t, f.localHandles(), 3)

	require.NoError(t, p.SetSize(context.Background(), -1))
	assert.Equal(t, 0, p.Size())
}

func TestShutdownClosesLocalAdapters(t *testing.T) {
	f := newFixture(t)
	p := f.pool(t, 2)

	p.Shutdown()
	assert.Equal(t, 0, p.Size())
	for _, h := range f.localHandles() {
		assert.True(t, h.Closed())
	}

	err := p.SetSize(context.Background(), 2)
	assert.ErrorIs(t, err, ErrPoolShutdown)
	assert.Equal(t, 0, p.Size())

	// a second shutdown is harmless
	p.Shutdown()
}

func TestClosedQueueStopsWorkers(t *testing.T) {
	f := newFixture(t)
	p := f.pool(t, 2)

	f.queue.Close()
	require.Eventually(t, func() bool { return p.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLocalOpenFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("local site down")
	f.factory.deps.Local = func(context.Context) (adapter.NodeAdapter, error) { return nil, boom }

	_, err := f.factory.New(context.Background(), site, f.queue, 1)
	assert.ErrorIs(t, err, boom)

	f.factory.deps.Local = nil
	_, err = f.factory.New(context.Background(), site, f.queue, 1)
	assert.ErrorIs(t, err, ErrNoLocalSite)
}

func TestCancelIfIdle(t *testing.T) {
	f := newFixture(t)
	f.remote.SetLatency(10 * time.Second)
	p := f.pool(t, 1)

	p.mu.Lock()
	w := p.workers[0]
	p.mu.Unlock()

	f.publish(t, record("m1"))
	require.Eventually(t, w.Busy, time.Second, time.Millisecond)
	assert.False(t, w.CancelIfIdle())

	w.Interrupt()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after interrupt")
	}
	assert.False(t, w.CancelIfIdle())
}
