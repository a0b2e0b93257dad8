// Package metrics records per-run load metrics on a private registry that is
// pushed to a Prometheus Pushgateway when the run ends. A batch job has no
// scrape endpoint, so the registry is never served.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type RunMetrics struct {
	Registry *prometheus.Registry

	ObjectsTotal   *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
	RowsLoaded     prometheus.Counter
	IngestDuration prometheus.Histogram
	LastSuccess    prometheus.Gauge
	LastRunLoaded  prometheus.Gauge
	LastRunFailed  prometheus.Gauge
}

// New builds the metric set. target labels every series ("postgres" or
// "warehouse").
func New(target string) *RunMetrics {
	constLabels := prometheus.Labels{"target": target}
	m := &RunMetrics{
		Registry: prometheus.NewRegistry(),
		ObjectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderload_objects_total",
			Help:        "Listed objects by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderload_failures_total",
			Help:        "Failed objects by error class",
			ConstLabels: constLabels,
		}, []string{"class"}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orderload_rows_loaded_total",
			Help:        "Rows appended to the target table",
			ConstLabels: constLabels,
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "orderload_ingest_duration_seconds",
			Help:        "Time taken to load one object",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderload_last_success_timestamp_seconds",
			Help:        "Unix time of the last run without failed objects",
			ConstLabels: constLabels,
		}),
		LastRunLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderload_last_run_loaded_objects",
			Help:        "Objects loaded in the last run",
			ConstLabels: constLabels,
		}),
		LastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderload_last_run_failed_objects",
			Help:        "Failed objects in the last run",
			ConstLabels: constLabels,
		}),
	}
	m.Registry.MustRegister(
		m.ObjectsTotal,
		m.FailuresTotal,
		m.RowsLoaded,
		m.IngestDuration,
		m.LastSuccess,
		m.LastRunLoaded,
		m.LastRunFailed,
	)
	return m
}

// ObserveObject records one outcome. class is only used for failures and
// elapsed only for attempted loads.
func (m *RunMetrics) ObserveObject(outcome, class string, rows int64, elapsed time.Duration) {
	m.ObjectsTotal.WithLabelValues(outcome).Inc()
	if class != "" {
		m.FailuresTotal.WithLabelValues(class).Inc()
	}
	if rows > 0 {
		m.RowsLoaded.Add(float64(rows))
	}
	if elapsed > 0 {
		m.IngestDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRun sets the per-run gauges. Only runs without failed objects move
// the last-success timestamp.
func (m *RunMetrics) ObserveRun(loaded, failed int, finishedAt time.Time) {
	m.LastRunLoaded.Set(float64(loaded))
	m.LastRunFailed.Set(float64(failed))
	if failed == 0 {
		m.LastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// Push replaces the job's metrics on the gateway at url.
func (m *RunMetrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.Registry).PushContext(ctx)
}
