package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChuLiYu/catalog-replicator/internal/queue"
)

// QueueSource lists the queues to export.
type QueueSource interface {
	Queues() []*queue.SiteQueue
}

// QueueCollector exports the counters of every site queue at scrape time.
type QueueCollector struct {
	source   QueueSource
	size     *prometheus.Desc
	pending  *prometheus.Desc
	active   *prometheus.Desc
	capacity *prometheus.Desc
}

var _ prometheus.Collector = (*QueueCollector)(nil)

func NewQueueCollector(source QueueSource) *QueueCollector {
	labels := []string{"site"}
	return &QueueCollector{
		source:   source,
		size:     prometheus.NewDesc("replicator_queue_size", "Pending plus active tasks", labels, nil),
		pending:  prometheus.NewDesc("replicator_queue_pending", "Tasks waiting to be taken", labels, nil),
		active:   prometheus.NewDesc("replicator_queue_active", "Tasks leased to workers", labels, nil),
		capacity: prometheus.NewDesc("replicator_queue_capacity", "Maximum tasks held by the queue", labels, nil),
	}
}

func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.pending
	ch <- c.active
	ch <- c.capacity
}

func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	for _, q := range c.source.Queues() {
		site := q.Site()
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(q.Size()), site)
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(q.PendingSize()), site)
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(q.ActiveSize()), site)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(q.Capacity()), site)
	}
}
