package queue

import (
	"fmt"
	"sort"
	"sync"
)

// Broker hands out the queue of each site, creating queues on first use.
type Broker struct {
	mu       sync.Mutex
	capacity int
	opts     []Option
	queues   map[string]*SiteQueue
}

// NewBroker returns a broker whose queues hold at most capacity tasks.
func NewBroker(capacity int, opts ...Option) *Broker {
	return &Broker{
		capacity: capacity,
		opts:     opts,
		queues:   make(map[string]*SiteQueue),
	}
}

// Queue returns the queue of site, creating it if needed.
func (b *Broker) Queue(site string) *SiteQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[site]
	if !ok {
		q = New(site, b.capacity, b.opts...)
		b.queues[site] = q
	}
	return q
}

// Lookup returns the queue of site if one exists.
func (b *Broker) Lookup(site string) (*SiteQueue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[site]
	return q, ok
}

// Composite would merge the queues of several sites into one consumer view.
// Reconciling priorities across independent sites is not supported.
func (b *Broker) Composite(sites ...string) (*SiteQueue, error) {
	return nil, fmt.Errorf("composite queue for %v: %w", sites, ErrCompositeUnsupported)
}

// Remove closes and forgets the queue of site. Pending tasks are dropped.
func (b *Broker) Remove(site string) {
	b.mu.Lock()
	q, ok := b.queues[site]
	delete(b.queues, site)
	b.mu.Unlock()

	if ok {
		q.Close()
	}
}

// Queues returns the current queues ordered by site id.
func (b *Broker) Queues() []*SiteQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*SiteQueue, 0, len(b.queues))
	for _, q := range b.queues {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].site < out[j].site })
	return out
}

// Close closes every queue.
func (b *Broker) Close() {
	b.mu.Lock()
	queues := b.queues
	b.queues = make(map[string]*SiteQueue)
	b.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
