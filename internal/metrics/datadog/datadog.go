// Package datadog implements a DogStatsD backend for the metrics package.
//
// Metric names are rewritten to Datadog's dotted style (insight_rows_total
// becomes rows.total under the configured namespace) and labels become
// sorted "key:value" tags. Empty label values are dropped, so run-wide row
// kinds carry no source tag while per-source loaded rows do.
package datadog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"insight/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string
	// Namespace prefixes every metric, e.g. "insight.".
	Namespace string
	// GlobalTags are added to every metric, e.g. "env:prod".
	GlobalTags []string
}

// client is the part of *statsd.Client the backend uses.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// newClient is a test hook that points to statsd.New by default.
var newClient = func(addr string, opts ...statsd.Option) (client, error) {
	return statsd.New(addr, opts...)
}

// names maps the metrics package names to their Datadog form.
var names = map[string]string{
	metrics.StepTotal:           "step.count",
	metrics.StepDurationSeconds: "step.duration",
	metrics.RowsTotal:           "rows.total",
	metrics.InsightsTotal:       "insights.total",
	metrics.TopImpactScore:      "top_impact.score",
}

// Backend is a Datadog implementation of metrics.Backend.
type Backend struct {
	client client
}

// NewBackend constructs a Datadog metrics backend. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := newClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. Row and insight counts are whole numbers, so the
// delta is rounded rather than truncated.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(metricName(name), int64(math.Round(delta)), labelsToTags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Histogram(metricName(name), value, labelsToTags(labels), 1)
}

func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Gauge(metricName(name), value, labelsToTags(labels), 1)
}

// Flush sends buffered metrics to the agent.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

// Close flushes and releases the client.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func metricName(name string) string {
	if n, ok := names[name]; ok {
		return n
	}
	return strings.ReplaceAll(strings.TrimPrefix(name, "insight_"), "_", ".")
}

// labelsToTags renders labels as sorted "key:value" tags, skipping empty
// values.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		if v == "" {
			continue
		}
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
