package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

// TaskMetrics counts task submissions and completions.
type TaskMetrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ ports.TaskMetrics = (*TaskMetrics)(nil)

// NewTaskMetrics creates the task collectors and registers them with reg.
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	m := &TaskMetrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_submitted_total",
				Help: "The total number of submitted tasks",
			},
			[]string{"kind", "mode"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_finished_total",
				Help: "The total number of tasks that reached a terminal state",
			},
			[]string{"kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "task_duration_seconds",
				Help:    "Task execution time in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.submitted, m.finished, m.duration)
	return m
}

func (m *TaskMetrics) TaskSubmitted(kind task.Kind, mode string) {
	m.submitted.WithLabelValues(string(kind), mode).Inc()
}

func (m *TaskMetrics) TaskFinished(kind task.Kind, status task.Status, elapsed time.Duration) {
	m.finished.WithLabelValues(string(kind), string(status)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// CacheCollector exposes the cache store's counters at scrape time.
type CacheCollector struct {
	store   ports.CacheStore
	timeout time.Duration

	hits    *prometheus.Desc
	misses  *prometheus.Desc
	sets    *prometheus.Desc
	hitRate *prometheus.Desc
	size    *prometheus.Desc
}

var _ prometheus.Collector = (*CacheCollector)(nil)

func NewCacheCollector(store ports.CacheStore) *CacheCollector {
	labels := []string{"backend"}
	return &CacheCollector{
		store:   store,
		timeout: 2 * time.Second,
		hits:    prometheus.NewDesc("cache_hits_total", "Cache lookups that found a live entry", labels, nil),
		misses:  prometheus.NewDesc("cache_misses_total", "Cache lookups that found nothing or failed", labels, nil),
		sets:    prometheus.NewDesc("cache_sets_total", "Successful cache writes", labels, nil),
		hitRate: prometheus.NewDesc("cache_hit_rate_percent", "Hit rate since process start", labels, nil),
		size:    prometheus.NewDesc("cache_entries", "Entries currently held by the backend", labels, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.sets
	ch <- c.hitRate
	ch <- c.size
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	st := c.store.Stats(ctx)
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits), st.Backend)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses), st.Backend)
	ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(st.Sets), st.Backend)
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, st.HitRate, st.Backend)
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size), st.Backend)
}
