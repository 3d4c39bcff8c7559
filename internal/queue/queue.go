// ============================================================================
// Site queue - bounded priority queue of replication tasks
// ============================================================================
//
// Package: internal/queue
// File: queue.go
//
// Layout:
//   buckets[9] ─ head → t → t → last      (highest priority)
//   ...
//   buckets[0] ─ head → t → last          (lowest priority)
//   active     ─ set of tasks leased to workers
//
// Locking:
//   putLock  + notFull   guard the tails of the buckets (producers)
//   takeLock + notEmpty  guard the heads of the buckets and the active set
//   Requeueing at the front of a bucket touches both ends and takes both
//   locks, putLock first.
//
// Counters:
//   size == pending + active, and size <= capacity. Active tasks still hold
//   their slot: capacity is only given back once a task reaches a terminal
//   state.
//
// ============================================================================

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

var (
	// ErrClosed is returned by blocking calls on a queue that was closed.
	ErrClosed = errors.New("site queue is closed")
	// ErrNoOwner is returned when a task is dequeued without an owner token.
	ErrNoOwner = errors.New("task owner is required")
	// ErrNotActive means the task is not leased from this queue.
	ErrNotActive = errors.New("task is not active in queue")
	// ErrCompositeUnsupported is returned for multi-site queues.
	ErrCompositeUnsupported = errors.New("composite site queues are not supported")
)

// DefaultCapacity is used when a queue is created with a non-positive
// capacity.
const DefaultCapacity = 1000

// Option configures a SiteQueue.
type Option func(*SiteQueue)

// WithClock replaces the clock used for task accounting.
func WithClock(now func() time.Time) Option {
	return func(q *SiteQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// SiteQueue is the bounded, priority-ordered queue of tasks for one site.
type SiteQueue struct {
	site     string
	capacity int64
	now      func() time.Time

	putLock  sync.Mutex
	notFull  *cond
	takeLock sync.Mutex
	notEmpty *cond

	buckets [types.MaxPriority + 1]*bucket
	active  map[*Task]struct{}

	size    atomic.Int64
	pending atomic.Int64
	leased  atomic.Int64
	closed  atomic.Bool
}

// New creates an empty queue for site holding at most capacity tasks.
func New(site string, capacity int, opts ...Option) *SiteQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &SiteQueue{
		site:     site,
		capacity: int64(capacity),
		now:      time.Now,
		active:   make(map[*Task]struct{}),
	}
	q.notFull = newCond(&q.putLock)
	q.notEmpty = newCond(&q.takeLock)
	for i := range q.buckets {
		q.buckets[i] = newBucket()
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Site returns the id of the site this queue belongs to.
func (q *SiteQueue) Site() string { return q.site }

// Capacity returns the maximum number of tasks the queue holds.
func (q *SiteQueue) Capacity() int { return int(q.capacity) }

// Size returns pending plus active tasks.
func (q *SiteQueue) Size() int { return int(q.size.Load()) }

// PendingSize returns the number of tasks waiting to be taken.
func (q *SiteQueue) PendingSize() int { return int(q.pending.Load()) }

// ActiveSize returns the number of tasks currently leased to workers.
func (q *SiteQueue) ActiveSize() int { return int(q.leased.Load()) }

// RemainingCapacity returns how many more tasks can be added right now.
func (q *SiteQueue) RemainingCapacity() int {
	return int(q.capacity - q.size.Load())
}

// Put adds a task for info, waiting for capacity. It fails only when ctx is
// done or the queue is closed.
func (q *SiteQueue) Put(ctx context.Context, info types.TaskInfo) error {
	_, err := q.insert(ctx, info, true, nil)
	return err
}

// Offer adds a task for info if capacity is available right now.
func (q *SiteQueue) Offer(info types.TaskInfo) bool {
	ok, _ := q.insert(context.Background(), info, false, nil)
	return ok
}

// OfferTimeout adds a task for info, waiting at most timeout for capacity.
// It returns false without error when the timeout elapses.
func (q *SiteQueue) OfferTimeout(ctx context.Context, info types.TaskInfo, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return q.insert(ctx, info, true, timer.C)
}

// Take removes the highest-priority, oldest pending task, waiting until one
// is available, and leases it to owner.
func (q *SiteQueue) Take(ctx context.Context, owner *Owner) (*Task, error) {
	return q.take(ctx, owner, nil)
}

// Poll is Take bounded by timeout. It returns a nil task and nil error when
// nothing became available in time.
func (q *SiteQueue) Poll(ctx context.Context, owner *Owner, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return q.take(ctx, owner, timer.C)
}

// Close wakes every blocked producer and consumer with ErrClosed. Leased
// tasks can still be completed, failed or unlocked.
func (q *SiteQueue) Close() {
	if q.closed.Swap(true) {
		return
	}
	q.fullyLock()
	q.notFull.signal()
	q.notEmpty.signal()
	q.fullyUnlock()
}

func (q *SiteQueue) insert(ctx context.Context, info types.TaskInfo, block bool, deadline <-chan time.Time) (bool, error) {
	if q.closed.Load() {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t := newTask(q, info)

	q.putLock.Lock()
	for q.size.Load() >= q.capacity {
		if !block {
			q.putLock.Unlock()
			return false, nil
		}
		if err := q.notFull.wait(ctx, deadline); err != nil {
			q.putLock.Unlock()
			if errors.Is(err, errTimeout) {
				return false, nil
			}
			return false, err
		}
		if q.closed.Load() {
			q.putLock.Unlock()
			return false, ErrClosed
		}
	}

	t.enqueued(q.now())
	q.buckets[t.priority].pushBack(t)
	c := q.size.Add(1)
	wasEmpty := q.pending.Add(1) == 1
	if c < q.capacity {
		q.notFull.signal()
	}
	q.putLock.Unlock()

	if wasEmpty {
		q.signalNotEmpty()
	}
	return true, nil
}

func (q *SiteQueue) take(ctx context.Context, owner *Owner, deadline <-chan time.Time) (*Task, error) {
	if owner == nil {
		return nil, ErrNoOwner
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.takeLock.Lock()
	for q.pending.Load() == 0 {
		if q.closed.Load() {
			q.takeLock.Unlock()
			return nil, ErrClosed
		}
		if err := q.notEmpty.wait(ctx, deadline); err != nil {
			q.takeLock.Unlock()
			if errors.Is(err, errTimeout) {
				return nil, nil
			}
			return nil, err
		}
	}
	if q.closed.Load() {
		q.takeLock.Unlock()
		return nil, ErrClosed
	}

	t := q.popHighest()
	q.active[t] = struct{}{}
	q.leased.Add(1)
	if q.pending.Add(-1) > 0 {
		q.notEmpty.signal()
	}
	t.lock(owner, q.now())
	q.takeLock.Unlock()

	return t, nil
}

// popHighest removes the next task. Caller holds takeLock and has observed
// pending > 0.
func (q *SiteQueue) popHighest() *Task {
	for p := types.MaxPriority; p >= types.MinPriority; p-- {
		if b := q.buckets[p]; b.count.Load() > 0 {
			return b.popFront()
		}
	}
	panic(fmt.Sprintf("site queue %s: pending count is positive but every bucket is empty", q.site))
}

// remove drops a terminal task from the active set and gives its slot back.
func (q *SiteQueue) remove(t *Task) error {
	q.takeLock.Lock()
	_, ok := q.active[t]
	if ok {
		delete(q.active, t)
	}
	q.takeLock.Unlock()
	if !ok {
		return fmt.Errorf("remove %s from %s: %w", t.ID(), q.site, ErrNotActive)
	}

	q.leased.Add(-1)
	if q.size.Add(-1) == q.capacity-1 {
		q.signalNotFull()
	}
	return nil
}

// requeue moves an active task back to pending. onRequeue runs while both
// locks are held, before the task becomes visible to consumers.
func (q *SiteQueue) requeue(t *Task, atFront bool, onRequeue func(now time.Time)) error {
	q.fullyLock()
	defer q.fullyUnlock()

	if _, ok := q.active[t]; !ok {
		return fmt.Errorf("requeue %s on %s: %w", t.ID(), q.site, ErrNotActive)
	}
	delete(q.active, t)
	q.leased.Add(-1)

	if onRequeue != nil {
		onRequeue(q.now())
	}

	b := q.buckets[t.priority]
	if atFront {
		b.pushFront(t)
	} else {
		b.pushBack(t)
	}
	if q.pending.Add(1) == 1 {
		q.notEmpty.signal()
	}
	return nil
}

func (q *SiteQueue) signalNotEmpty() {
	q.takeLock.Lock()
	q.notEmpty.signal()
	q.takeLock.Unlock()
}

func (q *SiteQueue) signalNotFull() {
	q.putLock.Lock()
	q.notFull.signal()
	q.putLock.Unlock()
}

func (q *SiteQueue) fullyLock() {
	q.putLock.Lock()
	q.takeLock.Lock()
}

func (q *SiteQueue) fullyUnlock() {
	q.takeLock.Unlock()
	q.putLock.Unlock()
}
