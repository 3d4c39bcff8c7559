package queue

import "sync/atomic"

type node struct {
	task *Task
	next *node
}

// bucket is the FIFO list of pending tasks for one priority. It starts with
// a dummy head node: the take side only moves head, the put side only moves
// last, and count publishes appended nodes to the take side.
type bucket struct {
	head  *node // guarded by takeLock
	last  *node // guarded by putLock
	count atomic.Int64
}

func newBucket() *bucket {
	n := &node{}
	return &bucket{head: n, last: n}
}

// pushBack appends t. Caller holds putLock.
func (b *bucket) pushBack(t *Task) {
	n := &node{task: t}
	b.last.next = n
	b.last = n
	b.count.Add(1)
}

// pushFront inserts t ahead of every pending task. Caller holds both locks.
func (b *bucket) pushFront(t *Task) {
	n := &node{task: t, next: b.head.next}
	b.head.next = n
	if b.last == b.head {
		b.last = n
	}
	b.count.Add(1)
}

// popFront removes the oldest task. Caller holds takeLock and has observed
// count > 0.
func (b *bucket) popFront() *Task {
	first := b.head.next
	b.head = first
	t := first.task
	first.task = nil
	b.count.Add(-1)
	return t
}
