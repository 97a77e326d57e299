package config

import (
	"errors"
	"fmt"
	"strings"

	"insight/internal/kpi"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced to users but does
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is a dotted path into the config (e.g. "dataset.sources[1].date_col",
// "derived_metrics[0].formula"). Err carries a typed cause when one exists,
// such as *kpi.FormulaError or *kpi.PeriodOverlapError.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
	Err      error
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Unwrap exposes the typed cause to errors.As.
func (i Issue) Unwrap() error { return i.Err }

// Err joins the error-severity issues into one error, or returns nil when
// there are none.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

var (
	knownKinds   = map[string]bool{KindFile: true, KindQuery: true, KindTable: true}
	knownModes   = map[string]bool{JoinLeft: true, JoinInner: true, JoinRight: true, JoinOuter: true}
	knownFormats = map[string]bool{"csv": true, "tsv": true, "txt": true, "json": true, "ndjson": true, "jsonl": true}
	knownDrivers = map[string]bool{
		"postgres": true, "postgresql": true, "pgx": true,
		"mysql":  true,
		"mssql":  true, "sqlserver": true,
		"sqlite": true, "sqlite3": true,
	}
)

// Validate performs static validation of c without touching any data: every
// source declares its roles, the join graph is resolvable, derived formulas
// compile, and the comparison periods parse and do not overlap.
//
// It does not mutate c. Callers decide whether warnings are fatal; Err(issues)
// returns only the blocking ones.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}

	issues = append(issues, validateSources(c)...)

	if !knownModes[c.Dataset.JoinMode] {
		add(SeverityError, "dataset.join_mode", "unknown join mode %q; want left, inner, right, or outer", c.Dataset.JoinMode)
	}

	issues = append(issues, validateDerived(c)...)
	issues = append(issues, validateReport(c)...)
	return issues
}

func validateSources(c Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Dataset.Sources) == 0 {
		add(SeverityError, "dataset.sources", "at least one source is required")
		return issues
	}

	names := map[string]int{}
	for i, s := range c.Dataset.Sources {
		p := fmt.Sprintf("dataset.sources[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			add(SeverityError, p+".name", "source name must not be empty")
		} else if j, dup := names[s.Name]; dup {
			add(SeverityError, p+".name", "source name %q already used by dataset.sources[%d]", s.Name, j)
		} else {
			names[s.Name] = i
		}
		issues = append(issues, validateLocation(p, s)...)

		if strings.TrimSpace(s.DateCol) == "" {
			add(SeverityError, p+".date_col", "date_col must be declared")
		}
		if len(s.Dimensions) == 0 {
			add(SeverityError, p+".dimensions", "at least one dimension must be declared")
		}
		if len(s.Metrics) == 0 {
			add(SeverityError, p+".metrics", "at least one metric must be declared")
		}
		roles := map[string]string{}
		if s.DateCol != "" {
			roles[s.DateCol] = "date_col"
		}
		for _, d := range s.Dimensions {
			roles[d] = "dimensions"
		}
		for _, m := range s.Metrics {
			if r, ok := roles[m]; ok {
				add(SeverityError, p+".metrics", "column %q is declared in both %s and metrics", m, r)
			}
		}
	}

	anchor, ok := c.Anchor()
	switch {
	case c.Dataset.PrimarySource != "" && !ok:
		add(SeverityError, "dataset.primary_source", "primary source %q is not declared", c.Dataset.PrimarySource)
		return issues
	case !ok:
		add(SeverityError, "dataset.primary_source", "cannot infer the anchor source: set primary_source or leave exactly one source without join_key")
		return issues
	}

	// Walk secondaries in declared order against the columns accumulated so
	// far, mirroring how the join engine folds them.
	owner := map[string]string{}
	for _, col := range declared(anchor) {
		owner[col] = anchor.Name
	}
	for i, s := range c.Dataset.Sources {
		if s.Name == anchor.Name {
			continue
		}
		p := fmt.Sprintf("dataset.sources[%d]", i)
		if len(s.JoinKey) == 0 {
			add(SeverityError, p+".join_key", "source %q is not the anchor and needs a join_key", s.Name)
			continue
		}
		key := map[string]bool{}
		for _, k := range s.JoinKey {
			key[k] = true
			if _, ok := owner[k]; !ok {
				add(SeverityError, p+".join_key", "join key column %q is not declared by the anchor or an earlier source", k)
			}
		}
		for _, col := range declared(s) {
			if key[col] {
				continue
			}
			if o, ok := owner[col]; ok {
				add(SeverityError, p, "column %q is also declared by source %q; rename it or add it to join_key", col, o)
				continue
			}
			owner[col] = s.Name
		}
	}
	return issues
}

func validateLocation(p string, s Source) []Issue {
	var issues []Issue
	add := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if !knownKinds[s.Kind] {
		add(p+".kind", "unknown source kind %q; want file, query, or table", s.Kind)
		return issues
	}
	switch s.Kind {
	case KindFile:
		if strings.TrimSpace(s.File.Path) == "" {
			add(p+".file.path", "file source requires a non-empty path")
		}
		if f := strings.ToLower(s.File.Format); f != "" && !knownFormats[f] {
			add(p+".file.format", "unknown file format %q; want csv or json", s.File.Format)
		}
	case KindQuery:
		if !knownDrivers[strings.ToLower(s.Query.Driver)] {
			add(p+".query.driver", "unknown driver %q", s.Query.Driver)
		}
		if strings.TrimSpace(s.Query.DSN) == "" {
			add(p+".query.dsn", "query source requires a dsn")
		}
		if strings.TrimSpace(s.Query.SQL) == "" {
			add(p+".query.sql", "query source requires sql")
		}
	case KindTable:
		if !knownDrivers[strings.ToLower(s.Table.Connection.Driver)] {
			add(p+".table.connection.driver", "unknown driver %q", s.Table.Connection.Driver)
		}
		if strings.TrimSpace(s.Table.Name) == "" {
			add(p+".table.name", "table source requires a table name")
		}
		if s.Table.Connection.Port < 0 || s.Table.Connection.Port > 65535 {
			add(p+".table.connection.port", "port %d out of range", s.Table.Connection.Port)
		}
	}
	return issues
}

func validateDerived(c Config) []Issue {
	var issues []Issue
	defs := make([]kpi.Definition, len(c.DerivedMetrics))
	for i, d := range c.DerivedMetrics {
		defs[i] = kpi.Definition{Name: d.Name, Formula: d.Formula}
	}
	if _, err := kpi.Compile(defs, c.BaseMetrics()); err != nil {
		path := "derived_metrics"
		var fe *kpi.FormulaError
		if errors.As(err, &fe) {
			for i, d := range c.DerivedMetrics {
				if d.Name == fe.Metric {
					path = fmt.Sprintf("derived_metrics[%d].formula", i)
					break
				}
			}
		}
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error(), Err: err})
	}

	cols := map[string]bool{}
	for _, s := range c.Dataset.Sources {
		cols[s.DateCol] = true
		for _, d := range s.Dimensions {
			cols[d] = true
		}
		for _, k := range s.JoinKey {
			cols[k] = true
		}
	}
	for i, d := range c.DerivedMetrics {
		if cols[d.Name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("derived_metrics[%d].name", i),
				Message:  fmt.Sprintf("derived metric %q clashes with a declared column", d.Name),
			})
		}
	}
	return issues
}

func validateReport(c Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	r := c.Report

	cur, curErr := kpi.ParsePeriod(kpi.Current, r.Comparison.CurrentStart, r.Comparison.CurrentEnd)
	if curErr != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "report.comparison.current", Message: curErr.Error(), Err: curErr})
	}
	prev, prevErr := kpi.ParsePeriod(kpi.Previous, r.Comparison.PreviousStart, r.Comparison.PreviousEnd)
	if prevErr != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "report.comparison.previous", Message: prevErr.Error(), Err: prevErr})
	}
	if curErr == nil && prevErr == nil {
		if err := kpi.CheckPeriods(cur, prev); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: "report.comparison", Message: err.Error(), Err: err})
		} else if cur.Start.Before(prev.Start) {
			add(SeverityWarning, "report.comparison", "current period precedes the previous period")
		}
	}

	dateCols := map[string]bool{}
	groupable := map[string]bool{}
	for _, s := range c.Dataset.Sources {
		dateCols[s.DateCol] = true
		for _, d := range s.Dimensions {
			groupable[d] = true
		}
		for _, k := range s.JoinKey {
			groupable[k] = true
		}
	}
	if r.PrimaryDateCol == "" {
		add(SeverityError, "report.primary_date_col", "primary_date_col is empty and no anchor date_col to default to")
	} else if !dateCols[r.PrimaryDateCol] {
		add(SeverityError, "report.primary_date_col", "column %q is not a declared date_col", r.PrimaryDateCol)
	}

	if len(r.PrimaryDims) == 0 {
		add(SeverityWarning, "report.primary_dims", "no primary_dims; every period aggregates into a single row")
	}
	seen := map[string]bool{}
	for i, d := range r.PrimaryDims {
		p := fmt.Sprintf("report.primary_dims[%d]", i)
		if !groupable[d] {
			add(SeverityError, p, "column %q is not a declared dimension or join key", d)
		}
		if seen[d] {
			add(SeverityWarning, p, "dimension %q listed twice", d)
		}
		seen[d] = true
	}

	metrics := map[string]bool{}
	for _, m := range c.BaseMetrics() {
		metrics[m] = true
	}
	for _, d := range c.DerivedMetrics {
		metrics[d.Name] = true
	}
	seen = map[string]bool{}
	for i, k := range r.KPIPriority {
		p := fmt.Sprintf("report.kpi_priority[%d]", i)
		if !metrics[k] {
			add(SeverityWarning, p, "unknown metric %q; it will never be weighted", k)
		}
		if seen[k] {
			add(SeverityWarning, p, "metric %q listed twice; the first position wins", k)
		}
		seen[k] = true
	}

	if r.MinImpact < 0 {
		add(SeverityWarning, "report.min_impact", "negative min_impact filters nothing")
	}
	return issues
}

func declared(s Source) []string {
	out := []string{}
	if s.DateCol != "" {
		out = append(out, s.DateCol)
	}
	out = append(out, s.Dimensions...)
	out = append(out, s.Metrics...)
	out = append(out, s.JoinKey...)
	return out
}
