// Package metrics defines the instrumentation surface of wealth computation.
package metrics

import "time"

// Task outcomes.
const (
	OutcomeDone        = "done"
	OutcomeInterrupted = "interrupted"
	OutcomeRejected    = "rejected"
)

// Collector receives task, scan and leaderboard measurements.
type Collector interface {
	TaskStarted(kind string)
	TaskFinished(kind, outcome string, elapsed time.Duration)
	TaskRejected(kind string)
	ScanCompleted(cells int64, elapsed time.Duration)
	LeaderboardCompleted(entries int, elapsed time.Duration)
	LeaderboardSkipped(trigger string)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

func NewNop() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) TaskStarted(string)                        {}
func (*NopMetrics) TaskFinished(string, string, time.Duration) {}
func (*NopMetrics) TaskRejected(string)                       {}
func (*NopMetrics) ScanCompleted(int64, time.Duration)        {}
func (*NopMetrics) LeaderboardCompleted(int, time.Duration)   {}
func (*NopMetrics) LeaderboardSkipped(string)                 {}
