// Package pipeline runs one insight computation end to end: validate the
// configuration, load every source concurrently, join, derive KPIs, split
// the two comparison periods, aggregate, and rank.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"insight/internal/config"
	"insight/internal/datasource/httpds"
	"insight/internal/ingest"
	"insight/internal/insight"
	"insight/internal/join"
	"insight/internal/kpi"
	"insight/internal/metrics"
	"insight/internal/schema"
)

// Options tunes a run without changing its results.
type Options struct {
	// RunID correlates logs and the report; a random UUID when empty.
	RunID string
	// Verbose enables per-stage log lines.
	Verbose bool
	// HTTP fetches remote file tables.
	HTTP *httpds.Client
	// Lookup resolves ${VAR} placeholders; nil uses the process environment.
	Lookup func(string) (string, bool)
	// Concurrency caps parallel source loads; <= 0 means one per source.
	Concurrency int
}

// Periods are the two comparison windows of a run.
type Periods struct {
	Current  kpi.Period `json:"current"`
	Previous kpi.Period `json:"previous"`
}

// Stats counts rows through the stages.
type Stats struct {
	SourceRows   map[string]int `json:"source_rows"`
	JoinedRows   int            `json:"joined_rows"`
	CurrentRows  int            `json:"current_rows"`
	PreviousRows int            `json:"previous_rows"`
	DroppedRows  int            `json:"dropped_rows"`
}

// Result is the outcome of a successful run.
type Result struct {
	Job        string            `json:"job"`
	RunID      string            `json:"run_id"`
	Periods    Periods           `json:"periods"`
	Dimensions []string          `json:"dimensions"`
	KPIs       []string          `json:"kpis"`
	Insights   []insight.Insight `json:"insights"`
	Summary    insight.Summary   `json:"summary"`
	Stats      Stats             `json:"stats"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// loadSource is a test hook that points to ingest.Load by default.
var loadSource = ingest.Load

// rankInsights is a test hook that points to insight.Rank by default.
var rankInsights = insight.Rank

// Run executes cfg. Any fatal error aborts the run and no partial result is
// returned. Configuration warnings are logged and carried on the Result.
func Run(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	cfg.ApplyDefaults()
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	job := cfg.Job
	logf := func(format string, args ...any) {
		if opts.Verbose {
			log.Printf("pipeline: job=%s run=%s "+format, append([]any{job, runID}, args...)...)
		}
	}

	res := &Result{
		Job:        job,
		RunID:      runID,
		Dimensions: cfg.Report.PrimaryDims,
		Stats:      Stats{SourceRows: map[string]int{}},
	}

	// Static checks: config lint, formula compile, period overlap.
	var (
		formulas []*kpi.Formula
		periods  Periods
	)
	err := step(job, metrics.StepValidate, func() error {
		issues := config.Validate(cfg)
		for _, iss := range issues {
			if iss.Severity == config.SeverityWarning {
				log.Printf("pipeline: warning %s: %s", iss.Path, iss.Message)
				res.Warnings = append(res.Warnings, iss.Error())
			}
		}
		if err := config.Err(issues); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		var err error
		formulas, err = compileFormulas(cfg)
		if err != nil {
			return err
		}
		periods, err = ParsePeriods(cfg.Report.Comparison)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Periods = periods

	// Load and unify every source; results are kept by declared index.
	tables := make([]*schema.Table, len(cfg.Dataset.Sources))
	err = step(job, metrics.StepLoad, func() error {
		g, gctx := errgroup.WithContext(ctx)
		if opts.Concurrency > 0 {
			g.SetLimit(opts.Concurrency)
		}
		for i, src := range cfg.Dataset.Sources {
			g.Go(func() error {
				t, err := loadSource(gctx, src, ingest.Options{
					BaseDir:     cfg.BaseDir,
					DateLayouts: cfg.Report.DateLayouts,
					HTTP:        opts.HTTP,
					Lookup:      opts.Lookup,
					Verbose:     opts.Verbose,
				})
				if err != nil {
					return err
				}
				tables[i] = t
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	var loaded int
	for _, t := range tables {
		res.Stats.SourceRows[t.Name] = t.Len()
		loaded += t.Len()
		metrics.RecordSourceRows(job, t.Name, t.Len())
	}
	logf("loaded sources=%d rows=%d", len(tables), loaded)

	var joined *schema.Table
	err = step(job, metrics.StepJoin, func() error {
		mode, err := join.ParseMode(cfg.Dataset.JoinMode)
		if err != nil {
			return err
		}
		anchor, _ := cfg.Anchor()
		joined, err = join.Join(tables, anchor.Name, mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Stats.JoinedRows = joined.Len()
	metrics.RecordRows(job, metrics.RowsJoined, joined.Len())
	logf("joined mode=%s rows=%d columns=%d", cfg.Dataset.JoinMode, joined.Len(), len(joined.Columns))

	if err := step(job, metrics.StepDerive, func() error { return kpi.Derive(joined, formulas) }); err != nil {
		return nil, err
	}
	res.KPIs = append([]string(nil), joined.Metrics...)

	var cur, prev []kpi.AggregateRow
	err = step(job, metrics.StepAggregate, func() error {
		curRows, prevRows, dropped, err := kpi.Split(joined, cfg.Report.PrimaryDateCol, periods.Current, periods.Previous)
		if err != nil {
			return err
		}
		res.Stats.CurrentRows, res.Stats.PreviousRows, res.Stats.DroppedRows = len(curRows), len(prevRows), dropped
		cur = kpi.Aggregate(curRows, cfg.Report.PrimaryDims, res.KPIs)
		prev = kpi.Aggregate(prevRows, cfg.Report.PrimaryDims, res.KPIs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(job, metrics.RowsCurrent, res.Stats.CurrentRows)
	metrics.RecordRows(job, metrics.RowsPrevious, res.Stats.PreviousRows)
	metrics.RecordRows(job, metrics.RowsDropped, res.Stats.DroppedRows)
	logf("split current=%d previous=%d dropped=%d groups=%d/%d",
		res.Stats.CurrentRows, res.Stats.PreviousRows, res.Stats.DroppedRows, len(cur), len(prev))

	err = step(job, metrics.StepRank, func() error {
		ranked, err := rankInsights(cur, prev, insight.Options{
			Dims:        cfg.Report.PrimaryDims,
			Metrics:     res.KPIs,
			KPIPriority: cfg.Report.KPIPriority,
			TopN:        cfg.Report.Limit(),
			MinImpact:   cfg.Report.MinImpact,
		})
		if err != nil {
			return err
		}
		res.Insights = ranked
		res.Summary = insight.Summarize(res.Insights)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Insights == nil {
		res.Insights = []insight.Insight{}
	}
	for _, in := range res.Insights {
		metrics.RecordInsight(job, in.Metric, in.Direction)
	}
	if top := res.Summary.TopMover; top != nil {
		metrics.RecordTopImpact(job, top.Metric, top.ImpactScore)
	}
	logf("ranked insights=%d gains=%d drops=%d", res.Summary.Total, res.Summary.Gains, res.Summary.Drops)
	return res, nil
}

// ParsePeriods parses and cross-checks the comparison windows.
func ParsePeriods(c config.Comparison) (Periods, error) {
	cur, err := kpi.ParsePeriod(kpi.Current, c.CurrentStart, c.CurrentEnd)
	if err != nil {
		return Periods{}, err
	}
	prev, err := kpi.ParsePeriod(kpi.Previous, c.PreviousStart, c.PreviousEnd)
	if err != nil {
		return Periods{}, err
	}
	if err := kpi.CheckPeriods(cur, prev); err != nil {
		return Periods{}, err
	}
	return Periods{Current: cur, Previous: prev}, nil
}

func compileFormulas(cfg config.Config) ([]*kpi.Formula, error) {
	defs := make([]kpi.Definition, len(cfg.DerivedMetrics))
	for i, d := range cfg.DerivedMetrics {
		defs[i] = kpi.Definition{Name: d.Name, Formula: d.Formula}
	}
	return kpi.Compile(defs, cfg.BaseMetrics())
}

// step times fn and records it under name.
func step(job, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return err
}
