// Package metrics exports lifecycle cycle reports. PrometheusRecorder keeps
// its own registry served on the ops /metrics endpoint; CloudWatchRecorder
// pushes the same figures to CloudWatch for the Lambda deployment.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/scheduler"
)

// PrometheusRecorder implements scheduler.CycleRecorder with counters
// labelled by task.
type PrometheusRecorder struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	Cancelled     *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Scanned       *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Failed        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	NotifyFailed  *prometheus.CounterVec
	LastCycle     *prometheus.GaugeVec
}

var _ scheduler.CycleRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := prometheus.NewRegistry()
	task := []string{"task"}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "lifecycle",
			Name:      name,
			Help:      help,
		}, task)
	}

	p := &PrometheusRecorder{
		reg:       r,
		Cycles:    counter("cycles_total", "Completed lifecycle cycles."),
		Cancelled: counter("cycles_cancelled_total", "Cycles cut short by a stop."),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "lifecycle",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle.",
			Buckets:   prometheus.DefBuckets,
		}, task),
		Scanned:       counter("entities_scanned_total", "Entities examined."),
		Transitions:   counter("transitions_total", "Persisted state changes and alert bursts."),
		Skipped:       counter("entities_skipped_total", "Entities skipped for missing data, terminal state or cooldown."),
		Failed:        counter("entities_failed_total", "Entities whose processing hit a repository error."),
		Notifications: counter("notifications_sent_total", "Delivered notifications."),
		NotifyFailed:  counter("notification_failures_total", "Notifications that could not be delivered."),
		LastCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "lifecycle",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Start time of the most recent cycle.",
		}, task),
	}

	r.MustRegister(
		p.Cycles, p.Cancelled, p.Duration, p.Scanned, p.Transitions,
		p.Skipped, p.Failed, p.Notifications, p.NotifyFailed, p.LastCycle,
	)
	return p
}

// RecordCycle adds report to the task's series.
func (p *PrometheusRecorder) RecordCycle(_ context.Context, report scheduler.CycleReport) {
	task := string(report.Task)
	p.Cycles.WithLabelValues(task).Inc()
	if report.Cancelled {
		p.Cancelled.WithLabelValues(task).Inc()
	}
	p.Duration.WithLabelValues(task).Observe(report.Duration.Seconds())
	p.Scanned.WithLabelValues(task).Add(float64(report.Scanned))
	p.Transitions.WithLabelValues(task).Add(float64(report.Transitioned))
	p.Skipped.WithLabelValues(task).Add(float64(report.Skipped))
	p.Failed.WithLabelValues(task).Add(float64(report.Failed))
	p.Notifications.WithLabelValues(task).Add(float64(report.Notified))
	p.NotifyFailed.WithLabelValues(task).Add(float64(report.NotifyFailed))
	p.LastCycle.WithLabelValues(task).Set(float64(report.StartedAt.Unix()))
}

// Registry exposes the underlying registry, e.g. to add runtime collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
