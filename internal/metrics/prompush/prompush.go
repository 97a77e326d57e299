// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Series live on a private registry and are pushed on Flush. The run's job
// name is the Pushgateway grouping key, so the "job" label of recorded
// metrics is not repeated as a Prometheus label.
package prompush

import (
	"fmt"

	"insight/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	steps     *prometheus.CounterVec
	durations *prometheus.SummaryVec
	rows      *prometheus.CounterVec
	insights  *prometheus.CounterVec
	topImpact *prometheus.GaugeVec
}

// NewBackend builds a backend that pushes to gatewayURL under jobName
// ("insight" when empty).
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "insight"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline stage executions by stage and outcome.",
		}, []string{"step", "status"}),
		durations: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Pipeline stage duration in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows by kind; loaded rows carry their source name.",
		}, []string{"kind", "source"}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.InsightsTotal,
			Help: "Ranked insights emitted, by metric and direction.",
		}, []string{"metric", "direction"}),
		topImpact: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.TopImpactScore,
			Help: "Impact score of the highest-ranked insight of the last run.",
		}, []string{"metric"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":     b.steps,
		"step summary":     b.durations,
		"row counter":      b.rows,
		"insight counter":  b.insights,
		"top impact gauge": b.topImpact,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["kind"], labels["source"]).Add(delta)
	case metrics.InsightsTotal:
		b.insights.WithLabelValues(labels["metric"], labels["direction"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// SetGauge records the top impact score. The previous run's series is reset
// first, so only the current top metric is reported.
func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	if name != metrics.TopImpactScore {
		return
	}
	b.topImpact.Reset()
	b.topImpact.WithLabelValues(labels["metric"]).Set(value)
}

// Flush pushes the registry to the Pushgateway, replacing the job's group.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
