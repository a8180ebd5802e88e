package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus. Collectors are
// created and registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	tasksStarted  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksInFlight prometheus.Gauge

	scanCells    prometheus.Counter
	scanDuration prometheus.Histogram

	boardPasses   prometheus.Counter
	boardSkipped  *prometheus.CounterVec
	boardDuration prometheus.Histogram
	boardEntries  prometheus.Gauge
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and
// "wealthtop" when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "wealthtop"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.tasksStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "task",
			Name:      "started_total",
			Help:      "Wealth tasks started by kind.",
		}, []string{"kind"})
		p.tasksFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "task",
			Name:      "finished_total",
			Help:      "Wealth tasks finished by kind and outcome (done, interrupted, rejected).",
		}, []string{"kind", "outcome"})
		p.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Wall time from task creation to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"kind"})
		p.tasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "task",
			Name:      "in_flight",
			Help:      "Tasks currently in flight.",
		})
		p.scanCells = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scan",
			Name:      "cells_total",
			Help:      "Cells visited by land scans.",
		})
		p.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of one entity land scan.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		})
		p.boardPasses = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leaderboard",
			Name:      "passes_total",
			Help:      "Completed leaderboard passes.",
		})
		p.boardSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leaderboard",
			Name:      "skipped_total",
			Help:      "Leaderboard triggers refused because a pass was running.",
		}, []string{"trigger"})
		p.boardDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "leaderboard",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full leaderboard pass.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		})
		p.boardEntries = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "leaderboard",
			Name:      "entries",
			Help:      "Entries in the current ranked view.",
		})

		for _, c := range []prometheus.Collector{
			p.tasksStarted, p.tasksFinished, p.taskDuration, p.tasksInFlight,
			p.scanCells, p.scanDuration,
			p.boardPasses, p.boardSkipped, p.boardDuration, p.boardEntries,
		} {
			_ = p.reg.Register(c)
		}
	})
}

func (p *PrometheusCollector) TaskStarted(kind string) {
	p.ensureRegistered()
	p.tasksStarted.WithLabelValues(kind).Inc()
	p.tasksInFlight.Inc()
}

func (p *PrometheusCollector) TaskFinished(kind, outcome string, elapsed time.Duration) {
	p.ensureRegistered()
	p.tasksFinished.WithLabelValues(kind, outcome).Inc()
	p.taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	p.tasksInFlight.Dec()
}

func (p *PrometheusCollector) TaskRejected(kind string) {
	p.ensureRegistered()
	p.tasksFinished.WithLabelValues(kind, OutcomeRejected).Inc()
}

func (p *PrometheusCollector) ScanCompleted(cells int64, elapsed time.Duration) {
	p.ensureRegistered()
	p.scanCells.Add(float64(cells))
	p.scanDuration.Observe(elapsed.Seconds())
}

func (p *PrometheusCollector) LeaderboardCompleted(entries int, elapsed time.Duration) {
	p.ensureRegistered()
	p.boardPasses.Inc()
	p.boardDuration.Observe(elapsed.Seconds())
	p.boardEntries.Set(float64(entries))
}

func (p *PrometheusCollector) LeaderboardSkipped(trigger string) {
	p.ensureRegistered()
	p.boardSkipped.WithLabelValues(trigger).Inc()
}
