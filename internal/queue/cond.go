package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errTimeout = errors.New("queue: wait timed out")

// cond is a condition variable bound to a mutex whose waits can be
// abandoned through a context or a deadline. Every method must be called
// with the mutex held.
type cond struct {
	mu      *sync.Mutex
	ch      chan struct{}
	waiters int
}

func newCond(mu *sync.Mutex) *cond {
	return &cond{mu: mu, ch: make(chan struct{})}
}

// wait releases the mutex until the condition is signalled, ctx is done or
// deadline fires, then reacquires it. A nil deadline never fires. Callers
// re-check their predicate in a loop.
func (c *cond) wait(ctx context.Context, deadline <-chan time.Time) error {
	ch := c.ch
	c.waiters++
	c.mu.Unlock()

	var err error
	select {
	case <-ch:
	case <-ctx.Done():
		err = ctx.Err()
	case <-deadline:
		err = errTimeout
	}

	c.mu.Lock()
	c.waiters--
	return err
}

// signal wakes the current waiters, if any.
func (c *cond) signal() {
	if c.waiters == 0 {
		return
	}
	close(c.ch)
	c.ch = make(chan struct{})
}
