package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

var (
	// ErrNotOwner is returned when a task is mutated by someone other than
	// the owner it was leased to.
	ErrNotOwner = errors.New("task is not owned by caller")
	// ErrTerminal is returned when a completed or failed task is mutated.
	ErrTerminal = errors.New("task is already in a terminal state")
)

// State of a task in its life cycle.
type State int

const (
	StatePending State = iota
	StateActive
	StateSuccessful
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateSuccessful:
		return "SUCCESSFUL"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccessful || s == StateFailed
}

// ErrorCode classifies why a task failed.
type ErrorCode string

const (
	CodeSiteUnavailable  ErrorCode = "SITE_UNAVAILABLE"
	CodeSiteTimeout      ErrorCode = "SITE_TIMEOUT"
	CodeOperationFailure ErrorCode = "OPERATION_FAILURE"
	CodeNoLongerExists   ErrorCode = "NO_LONGER_EXISTS"
	// CodeUnsupportedTask is reserved for callers that must reject a task
	// shape for good. Workers never use it: they give unsupported tasks
	// back so that a build which understands them can pick them up.
	CodeUnsupportedTask ErrorCode = "UNSUPPORTED_TASK"
)

// Retryable reports whether a task failing with c goes back to the queue.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeSiteUnavailable, CodeSiteTimeout, CodeOperationFailure:
		return true
	default:
		return false
	}
}

// Owner identifies the worker a task is leased to. Tokens are compared by
// identity.
type Owner struct {
	id   string
	name string
}

// NewOwner returns a fresh owner token.
func NewOwner(name string) *Owner {
	return &Owner{id: uuid.NewString(), name: name}
}

func (o *Owner) ID() string { return o.id }

func (o *Owner) String() string {
	if o == nil {
		return "<none>"
	}
	return o.name + "#" + o.id[:8]
}

// Task is the live handle of a queued TaskInfo. It belongs to the queue that
// created it and is leased to one owner at a time between Take and one of
// Complete, Fail or Unlock.
type Task struct {
	queue    *SiteQueue
	info     types.TaskInfo
	priority int

	mu             sync.Mutex
	state          State
	owner          *Owner
	attempts       int
	code           ErrorCode
	reason         string
	originalQueued time.Time
	queued         time.Time
	lastTransition time.Time
	total          time.Duration
	pendingTotal   time.Duration
	activeTotal    time.Duration
}

func newTask(q *SiteQueue, info types.TaskInfo) *Task {
	return &Task{
		queue:    q,
		info:     info,
		priority: types.ClampPriority(info.Priority),
		state:    StatePending,
	}
}

func (t *Task) ID() string             { return t.info.ID }
func (t *Task) Info() types.TaskInfo   { return t.info }
func (t *Task) Priority() int          { return t.priority }
func (t *Task) Site() string           { return t.queue.site }
func (t *Task) LastModified() time.Time { return t.info.LastModified }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attempts returns how many times the task was completed or failed.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// LastError returns the code and reason of the last failure. An active task
// has none.
func (t *Task) LastError() (ErrorCode, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code, t.reason
}

// OriginalQueuedTime is when the task first entered the queue.
func (t *Task) OriginalQueuedTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.originalQueued
}

// QueuedTime is when the task last entered the queue as fresh work. Only a
// retryable failure resets it.
func (t *Task) QueuedTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

// Duration is the time since the task was first queued, frozen once it
// reaches a terminal state.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.total
	if !t.state.Terminal() {
		d += t.sinceTransition()
	}
	return d
}

// PendingDuration is the accumulated time spent waiting in the queue.
func (t *Task) PendingDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.pendingTotal
	if t.state == StatePending {
		d += t.sinceTransition()
	}
	return d
}

// ActiveDuration is the accumulated time spent leased to workers.
func (t *Task) ActiveDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.activeTotal
	if t.state == StateActive {
		d += t.sinceTransition()
	}
	return d
}

// Unlock gives the task back untouched: it goes to the front of its
// priority bucket, keeps its queued time and does not count an attempt.
func (t *Task) Unlock(owner *Owner) error {
	if err := t.checkOwner(owner, "unlock"); err != nil {
		return err
	}
	return t.queue.requeue(t, true, func(now time.Time) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.transition(now, StatePending)
		t.owner = nil
	})
}

// Complete removes the task from its queue and marks it successful.
func (t *Task) Complete(owner *Owner) error {
	if err := t.checkOwner(owner, "complete"); err != nil {
		return err
	}
	if err := t.queue.remove(t); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(t.queue.now(), StateSuccessful)
	t.attempts++
	t.owner = nil
	return nil
}

// Fail records a failed attempt. Retryable codes send the task to the back
// of its priority bucket with a fresh queued time; any other code removes
// it and marks it failed.
func (t *Task) Fail(owner *Owner, code ErrorCode, reason ...string) error {
	if err := t.checkOwner(owner, "fail"); err != nil {
		return err
	}
	msg := strings.Join(reason, " ")

	if code.Retryable() {
		return t.queue.requeue(t, false, func(now time.Time) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.transition(now, StatePending)
			t.attempts++
			t.code = code
			t.reason = msg
			t.queued = now
			t.owner = nil
		})
	}

	if err := t.queue.remove(t); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(t.queue.now(), StateFailed)
	t.attempts++
	t.code = code
	t.reason = msg
	t.owner = nil
	return nil
}

func (t *Task) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Task[id=%s, priority=%d, state=%s, attempts=%d, owner=%s]",
		t.info.ID, t.priority, t.state, t.attempts, t.owner)
}

func (t *Task) checkOwner(owner *Owner, op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return fmt.Errorf("%s task %s: %w", op, t.info.ID, ErrTerminal)
	}
	if t.state != StateActive || owner == nil || t.owner != owner {
		return fmt.Errorf("%s task %s by %s (leased to %s): %w", op, t.info.ID, owner, t.owner, ErrNotOwner)
	}
	return nil
}

// enqueued stamps the first queue entry. Caller holds putLock.
func (t *Task) enqueued(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.originalQueued = now
	t.queued = now
	t.lastTransition = now
}

// lock leases the task to owner. Caller holds takeLock.
func (t *Task) lock(owner *Owner, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(now, StateActive)
	t.owner = owner
	t.code = ""
	t.reason = ""
}

// transition folds the time spent in the current state into the
// accumulators. Caller holds t.mu.
func (t *Task) transition(now time.Time, next State) {
	elapsed := now.Sub(t.lastTransition)
	if elapsed < 0 {
		elapsed = 0
	}
	t.total += elapsed
	switch t.state {
	case StatePending:
		t.pendingTotal += elapsed
	case StateActive:
		t.activeTotal += elapsed
	}
	t.state = next
	t.lastTransition = now
}

func (t *Task) sinceTransition() time.Duration {
	d := t.queue.now().Sub(t.lastTransition)
	if d < 0 {
		return 0
	}
	return d
}
