// Package metrics records operational metrics for insight runs behind a
// small, backend-agnostic interface.
//
// The default backend is a no-op, so instrumentation calls are always safe.
// Concrete systems live in subpackages (prompush for a Prometheus
// Pushgateway, datadog for DogStatsD) and are installed once at startup with
// SetBackend.
package metrics

import "time"

// Metric names emitted by the helpers below. Backends route on them.
const (
	StepTotal           = "insight_step_total"
	StepDurationSeconds = "insight_step_duration_seconds"
	RowsTotal           = "insight_rows_total"
	InsightsTotal       = "insight_insights_total"
	TopImpactScore      = "insight_top_impact_score"
)

// Pipeline stages, in run order.
const (
	StepValidate  = "validate"
	StepLoad      = "load"
	StepJoin      = "join"
	StepDerive    = "derive"
	StepAggregate = "aggregate"
	StepRank      = "rank"
)

// Row kinds counted under RowsTotal.
const (
	RowsLoaded   = "loaded"   // per source, labelled with the source name
	RowsJoined   = "joined"   // rows in the joined table
	RowsCurrent  = "current"  // joined rows inside the current period
	RowsPrevious = "previous" // joined rows inside the previous period
	RowsDropped  = "dropped"  // joined rows outside both periods or undated
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge sets a point-in-time value.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b and returns the backend it replaced. Passing nil
// keeps the existing backend.
func SetBackend(b Backend) Backend {
	prev := backend
	if b != nil {
		backend = b
	}
	return prev
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a pipeline stage and observes its
// duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordSourceRows counts the rows one source contributed after unification.
func RecordSourceRows(job, source string, n int) {
	if n <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(n), Labels{"job": job, "kind": RowsLoaded, "source": source})
}

// RecordRows counts rows of a run-wide kind (RowsJoined, RowsCurrent,
// RowsPrevious, RowsDropped).
func RecordRows(job, kind string, n int) {
	if n <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordInsight counts one emitted insight by metric and direction.
func RecordInsight(job, metric, direction string) {
	backend.IncCounter(InsightsTotal, 1, Labels{"job": job, "metric": metric, "direction": direction})
}

// RecordTopImpact publishes the impact score of the highest-ranked insight.
func RecordTopImpact(job, metric string, score float64) {
	backend.SetGauge(TopImpactScore, score, Labels{"job": job, "metric": metric})
}
