// Package probe profiles a sample of a file table and suggests how to
// analyze it: which column is the date, which are dimensions and metrics,
// and a current/previous 7-day comparison ending at the latest observed day.
// The suggestion is returned as a ready-to-edit config.Config.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"insight/internal/config"
	"insight/internal/datasource"
	"insight/internal/datasource/httpds"
	"insight/internal/parser"
	csvparser "insight/internal/parser/csv"
	jsonparser "insight/internal/parser/json"
	"insight/pkg/records"
)

// DefaultMaxBytes bounds the sample read from the start of the file.
const DefaultMaxBytes = 4 << 20

// Options control sampling.
type Options struct {
	// Location is a local path or an http(s) URL.
	Location string
	// BaseDir resolves a relative Location.
	BaseDir string
	// MaxBytes to sample; DefaultMaxBytes when <= 0.
	MaxBytes int
	// Delimiter for CSV input; detected from the header line when zero.
	Delimiter rune
	// Name labels the suggested job; defaults to the file's base name.
	Name string
	// HTTP fetches remote files; nil uses a default client.
	HTTP *httpds.Client
}

// Column is the profile of one sampled column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Layout   string `json:"layout,omitempty"`
	NonEmpty int    `json:"non_empty"`
	Distinct int    `json:"distinct"`
	Role     string `json:"role"`
}

// Column roles.
const (
	RoleDate      = "date"
	RoleDimension = "dimension"
	RoleMetric    = "metric"
	RoleIgnore    = "ignore"
)

// Analysis is the outcome of Analyze.
type Analysis struct {
	Location   string   `json:"location"`
	Rows       int      `json:"rows"`
	Truncated  bool     `json:"truncated"`
	Columns    []Column `json:"columns"`
	DateCol    string   `json:"date_col"`
	Dimensions []string `json:"dimensions"`
	Metrics    []string `json:"metrics"`
	// Earliest and Latest are the observed date range (YYYY-MM-DD).
	Earliest string `json:"earliest,omitempty"`
	Latest   string `json:"latest,omitempty"`

	Config config.Config `json:"config"`
}

// Analyze samples opt.Location and profiles it.
func Analyze(ctx context.Context, opt Options) (*Analysis, error) {
	if strings.TrimSpace(opt.Location) == "" {
		return nil, fmt.Errorf("probe: location is required")
	}
	limit := opt.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	client := opt.HTTP
	if client == nil && datasource.IsRemote(opt.Location) {
		client = httpds.NewClient(httpds.Config{})
	}

	rc, err := datasource.For(opt.Location, opt.BaseDir, client).Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: open %s: %w", opt.Location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("probe: read %s: %w", opt.Location, err)
	}
	truncated := len(data) > limit
	if truncated {
		data = data[:limit]
		// Cut to the last newline so no partial record is sampled.
		if i := bytes.LastIndexByte(data, '\n'); i > 0 {
			data = data[:i+1]
		}
	}

	name := sampleName(opt.Location)
	var p parser.Parser
	switch strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".") {
	case "json", "ndjson", "jsonl":
		p = jsonparser.NewParser(jsonparser.Options{AllowArrays: true})
	default:
		p = csvparser.NewParser(csvparser.Options{Comma: opt.Delimiter, TrimSpace: true})
	}
	res, err := p.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("probe: parse sample: %w", err)
	}

	a := &Analysis{Location: opt.Location, Rows: len(res.Rows), Truncated: truncated}
	a.profile(res)
	jobName := opt.Name
	if jobName == "" {
		jobName = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	a.Config = a.skeleton(normalizeFieldName(jobName), opt)
	return a, nil
}

// sampleName strips URL query strings so extension detection sees the path.
func sampleName(loc string) string {
	if i := strings.IndexAny(loc, "?#"); i >= 0 && datasource.IsRemote(loc) {
		return loc[:i]
	}
	return loc
}

// profile infers a type and role per column and picks the date range.
func (a *Analysis) profile(res *parser.Result) {
	for _, col := range res.Columns {
		values := make([]string, 0, len(res.Rows))
		for _, r := range res.Rows {
			values = append(values, records.Text(r[col]))
		}
		nonEmpty := nonEmptyTrimmed(values)
		c := Column{
			Name:     col,
			Type:     inferTypeForColumn(values),
			NonEmpty: len(nonEmpty),
			Distinct: distinct(nonEmpty),
		}
		switch c.Type {
		case "date":
			c.Layout = selectBestLayout(nonEmpty, dateLayouts, dateLayoutPreference)
		case "timestamp":
			c.Layout = selectBestLayout(nonEmpty, timestampLayouts, timestampLayoutPreference)
		}
		a.Columns = append(a.Columns, c)
	}

	dateIdx := pickDateColumn(a.Columns)
	for i := range a.Columns {
		c := &a.Columns[i]
		switch {
		case i == dateIdx:
			c.Role = RoleDate
			a.DateCol = c.Name
		case c.Type == "date" || c.Type == "timestamp":
			c.Role = RoleIgnore
		case (c.Type == "integer" || c.Type == "real") && !looksLikeID(c.Name):
			c.Role = RoleMetric
			a.Metrics = append(a.Metrics, c.Name)
		case c.NonEmpty > 0 && (c.Distinct < c.NonEmpty || c.NonEmpty == 1):
			c.Role = RoleDimension
			a.Dimensions = append(a.Dimensions, c.Name)
		default:
			// Unique per row: identifiers and free text.
			c.Role = RoleIgnore
		}
	}

	if dateIdx < 0 {
		return
	}
	layout := a.Columns[dateIdx].Layout
	var days []time.Time
	for _, r := range res.Rows {
		s := strings.TrimSpace(records.Text(r[a.DateCol]))
		if s == "" {
			continue
		}
		if ts, err := time.Parse(layout, s); err == nil {
			days = append(days, ts)
		}
	}
	if len(days) == 0 {
		return
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	a.Earliest = days[0].Format(records.DateLayout)
	a.Latest = days[len(days)-1].Format(records.DateLayout)
}

// pickDateColumn prefers a date-typed column whose name mentions a date,
// then the first date column, then the first timestamp column.
func pickDateColumn(cols []Column) int {
	first, firstTS := -1, -1
	for i, c := range cols {
		switch c.Type {
		case "date":
			n := strings.ToLower(c.Name)
			if strings.Contains(n, "date") || strings.Contains(n, "day") || strings.Contains(n, "datum") {
				return i
			}
			if first < 0 {
				first = i
			}
		case "timestamp":
			if firstTS < 0 {
				firstTS = i
			}
		}
	}
	if first >= 0 {
		return first
	}
	return firstTS
}

func looksLikeID(name string) bool {
	n := strings.ToLower(name)
	return n == "id" || strings.HasSuffix(n, "_id") || strings.HasSuffix(n, " id")
}

func distinct(vals []string) int {
	seen := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// commonRatios are derived metrics suggested when both operands are present.
var commonRatios = []struct{ name, num, den string }{
	{"ctr", "clicks", "impressions"},
	{"cpc", "spend", "clicks"},
	{"cpa", "spend", "conversions"},
	{"cvr", "conversions", "clicks"},
	{"roas", "revenue", "spend"},
}

// skeleton renders the analysis as a single-source configuration comparing
// the last 7 observed days against the 7 days before.
func (a *Analysis) skeleton(job string, opt Options) config.Config {
	src := config.Source{
		Name:       job,
		Kind:       config.KindFile,
		File:       config.SourceFile{Path: opt.Location},
		Options:    config.Options{},
		DateCol:    a.DateCol,
		Dimensions: a.Dimensions,
		Metrics:    a.Metrics,
	}
	if opt.Delimiter != 0 {
		src.Options["comma"] = string(opt.Delimiter)
	}
	topN := config.DefaultTopN
	cfg := config.Config{
		Job:            job,
		Dataset:        config.Dataset{PrimarySource: job, JoinMode: config.JoinLeft, Sources: []config.Source{src}},
		DerivedMetrics: []config.DerivedMetric{},
		Report: config.Report{
			PrimaryDateCol: a.DateCol,
			KPIPriority:    a.Metrics,
			TopN:           &topN,
		},
	}

	present := map[string]string{}
	for _, m := range a.Metrics {
		present[strings.ToLower(m)] = m
	}
	for _, r := range commonRatios {
		num, okN := present[r.num]
		den, okD := present[r.den]
		if okN && okD {
			if _, clash := present[r.name]; !clash {
				cfg.DerivedMetrics = append(cfg.DerivedMetrics, config.DerivedMetric{Name: r.name, Formula: num + " / " + den})
			}
		}
	}

	if len(a.Dimensions) > 0 {
		cfg.Report.PrimaryDims = a.Dimensions[:1]
	}
	for _, c := range a.Columns {
		if c.Role == RoleDate && c.Layout != "" && c.Layout != records.DateLayout {
			cfg.Report.DateLayouts = []string{c.Layout}
		}
	}
	if a.Latest != "" {
		latest, _ := time.Parse(records.DateLayout, a.Latest)
		cfg.Report.Comparison = config.Comparison{
			CurrentStart:  latest.AddDate(0, 0, -6).Format(records.DateLayout),
			CurrentEnd:    a.Latest,
			PreviousStart: latest.AddDate(0, 0, -13).Format(records.DateLayout),
			PreviousEnd:   latest.AddDate(0, 0, -7).Format(records.DateLayout),
		}
	}
	return cfg
}
