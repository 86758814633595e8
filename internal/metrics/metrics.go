// Package metrics provides Prometheus metrics for objfs transfers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one client. Methods are safe on a nil receiver.
type Metrics struct {
	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	listPagesTotal   prometheus.Counter
	bytesDownloaded  prometheus.Counter
	enumeratedTotal  *prometheus.CounterVec
	batchFailedTotal *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Task metrics
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objfs_tasks_total",
				Help: "Total number of executed sync tasks",
			},
			[]string{"op", "result"},
		),

		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "objfs_task_duration_seconds",
				Help:    "Sync task duration in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objfs_retries_total",
				Help: "Total number of retried attempts",
			},
			[]string{"op"},
		),

		enumeratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objfs_enumerated_tasks_total",
				Help: "Total number of tasks produced by tree enumeration",
			},
			[]string{"op"},
		),

		batchFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objfs_batch_failures_total",
				Help: "Total number of directory operations that reported failures",
			},
			[]string{"op"},
		),

		// Listing and transfer metrics
		listPagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "objfs_list_pages_total",
				Help: "Total number of listing pages fetched",
			},
		),

		bytesDownloaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "objfs_bytes_downloaded_total",
				Help: "Total bytes written locally from signed URLs",
			},
		),
	}
}

// RecordTask records the terminal result of one task.
func (m *Metrics) RecordTask(op string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.tasksTotal.WithLabelValues(op, result).Inc()
	m.taskDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRetry records one retried attempt.
func (m *Metrics) RecordRetry(op string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(op).Inc()
}

// RecordEnumerated records a task produced by enumeration.
func (m *Metrics) RecordEnumerated(op string) {
	if m == nil {
		return
	}
	m.enumeratedTotal.WithLabelValues(op).Inc()
}

// RecordBatchFailure records a directory operation that ended with failures.
func (m *Metrics) RecordBatchFailure(op string) {
	if m == nil {
		return
	}
	m.batchFailedTotal.WithLabelValues(op).Inc()
}

// RecordListPage records one fetched listing page.
func (m *Metrics) RecordListPage() {
	if m == nil {
		return
	}
	m.listPagesTotal.Inc()
}

// RecordBytesDownloaded adds n downloaded bytes.
func (m *Metrics) RecordBytesDownloaded(n int64) {
	if m == nil {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}
