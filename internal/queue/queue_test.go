package queue

// ============================================================================
// Site queue tests
// Purpose: priority ordering, capacity/backpressure, ownership, retry
// bookkeeping and duration accounting
// ============================================================================

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newInfo(id string, priority int) types.TaskInfo {
	md := types.Metadata{ID: id, Type: "record", MetadataModified: time.Now()}
	info := types.NewHarvestInfo("site-a", priority, md)
	info.ID = id
	return info
}

func mustTake(t *testing.T, q *SiteQueue, owner *Owner) *Task {
	t.Helper()
	task, err := q.Poll(context.Background(), owner, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task, "expected a task to be available")
	return task
}

func assertCounters(t *testing.T, q *SiteQueue, pending, active int) {
	t.Helper()
	assert.Equal(t, pending, q.PendingSize(), "pending")
	assert.Equal(t, active, q.ActiveSize(), "active")
	assert.Equal(t, pending+active, q.Size(), "size")
	assert.Equal(t, q.Capacity()-pending-active, q.RemainingCapacity(), "remaining capacity")
}

// ============================================================================
// Ordering
// ============================================================================

func TestTakeReturnsHighestPriorityFirst(t *testing.T) {
	q := New("site-a", 10)
	ctx := context.Background()
	owner := NewOwner("worker")

	require.NoError(t, q.Put(ctx, newInfo("low", 1)))
	require.NoError(t, q.Put(ctx, newInfo("high", 8)))
	require.NoError(t, q.Put(ctx, newInfo("mid", 5)))

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, mustTake(t, q, owner).ID())
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)
}

func TestTakeIsFIFOWithinPriority(t *testing.T) {
	q := New("site-a", 10)
	ctx := context.Background()
	owner := NewOwner("worker")

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Put(ctx, newInfo(id, 4)))
	}

	assert.Equal(t, "a", mustTake(t, q, owner).ID())
	assert.Equal(t, "b", mustTake(t, q, owner).ID())
	assert.Equal(t, "c", mustTake(t, q, owner).ID())
}

func TestPriorityIsClamped(t *testing.T) {
	q := New("site-a", 10)
	ctx := context.Background()
	owner := NewOwner("worker")

	require.NoError(t, q.Put(ctx, newInfo("negative", -3)))
	require.NoError(t, q.Put(ctx, newInfo("huge", 42)))
	require.NoError(t, q.Put(ctx, newInfo("nine", 9)))

	first := mustTake(t, q, owner)
	assert.Equal(t, "huge", first.ID())
	assert.Equal(t, types.MaxPriority, first.Priority())
	assert.Equal(t, "nine", mustTake(t, q, owner).ID())

	last := mustTake(t, q, owner)
	assert.Equal(t, "negative", last.ID())
	assert.Equal(t, types.MinPriority, last.Priority())
}

// ============================================================================
// Capacity and blocking
// ============================================================================

func TestPutBlocksUntilTerminalCompletionFreesSlot(t *testing.T) {
	q := New("site-a", 2)
	ctx := context.Background()
	owner := NewOwner("worker")

	require.NoError(t, q.Put(ctx, newInfo("a", 1)))
	require.NoError(t, q.Put(ctx, newInfo("b", 1)))

	done := make(chan error, 1)
	go func() {
		done <- q.Put(ctx, newInfo("c", 1))
	}()

	select {
	case <-done:
		t.Fatal("Put returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	// Taking does not give the slot back: active tasks still count.
	task := mustTake(t, q, owner)
	select {
	case <-done:
		t.Fatal("Put returned after Take; active tasks must keep their slot")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, task.Complete(owner))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Complete")
	}
	assertCounters(t, q, 2, 0)
}

func TestOfferDoesNotBlock(t *testing.T) {
	q := New("site-a", 1)

	assert.True(t, q.Offer(newInfo("a", 1)))
	assert.False(t, q.Offer(newInfo("b", 1)))
	assertCounters(t, q, 1, 0)
}

func TestOfferTimeoutGivesUp(t *testing.T) {
	q := New("site-a", 1)
	ctx := context.Background()

	ok, err := q.OfferTimeout(ctx, newInfo("a", 1), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	start := time.Now()
	ok, err = q.OfferTimeout(ctx, newInfo("b", 1), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPollTimesOutOnEmptyQueue(t *testing.T) {
	q := New("site-a", 1)

	task, err := q.Poll(context.Background(), NewOwner("worker"), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestTakeHonoursContextCancellation(t *testing.T) {
	q := New("site-a", 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx, NewOwner("worker"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Take did not return after cancellation")
	}
}

func TestTakeWakesUpOnPut(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("worker")

	got := make(chan *Task, 1)
	go func() {
		task, err := q.Take(context.Background(), owner)
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(context.Background(), newInfo("late", 3)))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.ID())
		assert.Equal(t, StateActive, task.State())
	case <-time.After(time.Second):
		t.Fatal("Take was not woken by Put")
	}
}

func TestTakeRequiresOwner(t *testing.T) {
	q := New("site-a", 1)
	_, err := q.Take(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestCloseWakesBlockedCallers(t *testing.T) {
	q := New("site-a", 1)
	require.True(t, q.Offer(newInfo("a", 1)))

	putErr := make(chan error, 1)
	go func() { putErr <- q.Put(context.Background(), newInfo("b", 1)) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-putErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Put was not woken by Close")
	}

	_, err := q.Take(context.Background(), NewOwner("worker"))
	assert.ErrorIs(t, err, ErrClosed)
}

// ============================================================================
// Ownership and state machine
// ============================================================================

func TestMutatorsRequireOwner(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("worker-1")
	intruder := NewOwner("worker-2")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 1)))

	task := mustTake(t, q, owner)

	assert.ErrorIs(t, task.Complete(intruder), ErrNotOwner)
	assert.ErrorIs(t, task.Fail(intruder, CodeOperationFailure), ErrNotOwner)
	assert.ErrorIs(t, task.Unlock(intruder), ErrNotOwner)
	assert.ErrorIs(t, task.Complete(nil), ErrNotOwner)

	// The lease is untouched by the rejected calls.
	assert.Equal(t, StateActive, task.State())
	assertCounters(t, q, 0, 1)
	require.NoError(t, task.Complete(owner))
}

func TestTerminalTaskRejectsMutation(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("worker")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 1)))

	task := mustTake(t, q, owner)
	require.NoError(t, task.Complete(owner))

	assert.Equal(t, StateSuccessful, task.State())
	assert.ErrorIs(t, task.Complete(owner), ErrTerminal)
	assert.ErrorIs(t, task.Fail(owner, CodeOperationFailure), ErrTerminal)
	assert.ErrorIs(t, task.Unlock(owner), ErrTerminal)
	assertCounters(t, q, 0, 0)
}

func TestPendingTaskRejectsMutation(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("worker")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 1)))

	task := mustTake(t, q, owner)
	require.NoError(t, task.Unlock(owner))

	// Given back: the previous owner no longer holds the lease.
	assert.ErrorIs(t, task.Complete(owner), ErrNotOwner)
}

func TestRetryableFailRequeuesAtBack(t *testing.T) {
	clock := newFakeClock()
	q := New("site-a", 4, WithClock(clock.Now))
	owner := NewOwner("worker")
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, newInfo("a", 2)))
	require.NoError(t, q.Put(ctx, newInfo("b", 2)))

	task := mustTake(t, q, owner)
	require.Equal(t, "a", task.ID())
	originalQueued := task.OriginalQueuedTime()

	clock.Advance(time.Minute)
	require.NoError(t, task.Fail(owner, CodeSiteUnavailable, "remote", "down"))

	assert.Equal(t, StatePending, task.State())
	assert.Equal(t, 1, task.Attempts())
	code, reason := task.LastError()
	assert.Equal(t, CodeSiteUnavailable, code)
	assert.Equal(t, "remote down", reason)
	assert.Equal(t, clock.Now(), task.QueuedTime())
	assert.Equal(t, originalQueued, task.OriginalQueuedTime())
	assertCounters(t, q, 2, 0)

	assert.Equal(t, "b", mustTake(t, q, owner).ID())
	again := mustTake(t, q, owner)
	assert.Same(t, task, again)
	code, _ = again.LastError()
	assert.Empty(t, code, "taking a task clears its previous error")
}

func TestUnlockRequeuesAtFrontWithoutPenalty(t *testing.T) {
	clock := newFakeClock()
	q := New("site-a", 4, WithClock(clock.Now))
	owner := NewOwner("worker")
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, newInfo("a", 2)))
	require.NoError(t, q.Put(ctx, newInfo("b", 2)))

	task := mustTake(t, q, owner)
	queued := task.QueuedTime()
	clock.Advance(time.Minute)
	require.NoError(t, task.Unlock(owner))

	assert.Equal(t, 0, task.Attempts())
	assert.Equal(t, queued, task.QueuedTime())

	again := mustTake(t, q, owner)
	assert.Same(t, task, again)
	assert.Equal(t, "b", mustTake(t, q, owner).ID())
}

func TestTerminalFailRemovesTask(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("worker")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 2)))

	task := mustTake(t, q, owner)
	require.NoError(t, task.Fail(owner, CodeNoLongerExists, "deleted upstream"))

	assert.Equal(t, StateFailed, task.State())
	assert.Equal(t, 1, task.Attempts())
	code, reason := task.LastError()
	assert.Equal(t, CodeNoLongerExists, code)
	assert.Equal(t, "deleted upstream", reason)
	assertCounters(t, q, 0, 0)
}

func TestRejectedTaskShapeFailsForGood(t *testing.T) {
	q := New("site-a", 4)
	owner := NewOwner("adapter")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 2)))

	task := mustTake(t, q, owner)
	require.NoError(t, task.Fail(owner, CodeUnsupportedTask, "payload type not handled"))

	assert.Equal(t, StateFailed, task.State())
	code, _ := task.LastError()
	assert.Equal(t, CodeUnsupportedTask, code)
	assertCounters(t, q, 0, 0)
	assert.ErrorIs(t, task.Unlock(owner), ErrTerminal)
}

func TestErrorCodeRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{CodeSiteUnavailable, true},
		{CodeSiteTimeout, true},
		{CodeOperationFailure, true},
		{CodeNoLongerExists, false},
		{CodeUnsupportedTask, false},
		{ErrorCode("SOMETHING_ELSE"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Retryable())
		})
	}
}

// ============================================================================
// Duration accounting
// ============================================================================

func TestDurationsAccumulatePerState(t *testing.T) {
	clock := newFakeClock()
	q := New("site-a", 4, WithClock(clock.Now))
	owner := NewOwner("worker")
	require.NoError(t, q.Put(context.Background(), newInfo("a", 2)))

	clock.Advance(10 * time.Second)
	task := mustTake(t, q, owner)

	clock.Advance(5 * time.Second)
	// In flight: the active time so far is included.
	assert.Equal(t, 15*time.Second, task.Duration())
	assert.Equal(t, 10*time.Second, task.PendingDuration())
	assert.Equal(t, 5*time.Second, task.ActiveDuration())

	require.NoError(t, task.Fail(owner, CodeOperationFailure))
	clock.Advance(3 * time.Second)
	assert.Equal(t, 13*time.Second, task.PendingDuration())

	task = mustTake(t, q, owner)
	clock.Advance(2 * time.Second)
	require.NoError(t, task.Complete(owner))

	clock.Advance(time.Hour)
	// Frozen once terminal.
	assert.Equal(t, 20*time.Second, task.Duration())
	assert.Equal(t, 13*time.Second, task.PendingDuration())
	assert.Equal(t, 7*time.Second, task.ActiveDuration())
}

// ============================================================================
// Concurrency
// ============================================================================

func TestConcurrentProducersAndConsumers(t *testing.T) {
	const (
		producers   = 4
		consumers   = 6
		perProducer = 200
	)
	q := New("site-a", 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func(p int) {
			defer produced.Done()
			for i := 0; i < perProducer; i++ {
				info := newInfo(fmt.Sprintf("p%d-%d", p, i), i%10)
				if err := q.Put(ctx, info); err != nil {
					return
				}
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var consumed sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func(c int) {
			defer consumed.Done()
			owner := NewOwner(fmt.Sprintf("consumer-%d", c))
			for {
				task, err := q.Take(ctx, owner)
				if err != nil {
					return
				}
				// Every third task is given back once to exercise requeueing.
				if task.Attempts() == 0 && len(task.ID())%3 == 0 {
					if err := task.Fail(owner, CodeOperationFailure); err != nil {
						t.Errorf("fail: %v", err)
					}
					continue
				}
				if err := task.Complete(owner); err != nil {
					t.Errorf("complete: %v", err)
					continue
				}
				mu.Lock()
				seen[task.ID()]++
				mu.Unlock()
			}
		}(c)
	}

	produced.Wait()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == producers*perProducer
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	consumed.Wait()

	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s completed more than once", id)
	}
	assertCounters(t, q, 0, 0)
}

// ============================================================================
// Broker
// ============================================================================

func TestBrokerQueuePerSite(t *testing.T) {
	b := NewBroker(5)

	qa := b.Queue("a")
	assert.Same(t, qa, b.Queue("a"))
	assert.NotSame(t, qa, b.Queue("b"))
	assert.Equal(t, 5, qa.Capacity())

	queues := b.Queues()
	require.Len(t, queues, 2)
	assert.Equal(t, "a", queues[0].Site())

	b.Remove("a")
	_, ok := b.Lookup("a")
	assert.False(t, ok)
	assert.False(t, qa.Offer(newInfo("x", 1)), "removed queue is closed")
}

func TestBrokerCompositeUnsupported(t *testing.T) {
	b := NewBroker(5)
	q, err := b.Composite("a", "b")
	assert.Nil(t, q)
	assert.ErrorIs(t, err, ErrCompositeUnsupported)
}
