// Package config defines the JSON/YAML configuration model for an insight
// run: the declared sources, the derived metric formulas, and the comparison
// report parameters. A Config is a plain value that is threaded through every
// pipeline stage; nothing in this package holds global state.
//
// Example (trimmed):
//
//	{
//	  "job": "weekly-marketing",
//	  "dataset": {
//	    "primary_source": "ads",
//	    "join_mode": "left",
//	    "sources": [
//	      { "name": "ads", "kind": "file", "file": { "path": "ads.csv" },
//	        "date_col": "date", "dimensions": ["campaign"], "metrics": ["spend", "clicks"] }
//	    ]
//	  },
//	  "derived_metrics": [ { "name": "cpc", "formula": "spend / clicks" } ],
//	  "report": {
//	    "comparison": { "current_start": "2024-01-08", "current_end": "2024-01-14",
//	                    "previous_start": "2024-01-01", "previous_end": "2024-01-07" },
//	    "primary_dims": ["campaign"],
//	    "kpi_priority": ["spend", "cpc"]
//	  }
//	}
package config

import (
	"encoding/json"
	"fmt"
)

// Source kinds. The set is closed; ingest dispatches on it.
const (
	KindFile  = "file"
	KindQuery = "query"
	KindTable = "table"
)

// Join modes accepted by dataset.join_mode.
const (
	JoinLeft  = "left"
	JoinInner = "inner"
	JoinRight = "right"
	JoinOuter = "outer"
)

// DefaultTopN is applied when report.top_n is absent. An explicit 0 or a
// negative value keeps every insight.
const DefaultTopN = 20

// Config is the top-level object decoded from a configuration file.
type Config struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job" yaml:"job"`

	Dataset        Dataset         `json:"dataset" yaml:"dataset"`
	DerivedMetrics []DerivedMetric `json:"derived_metrics" yaml:"derived_metrics"`
	Report         Report          `json:"report" yaml:"report"`

	// BaseDir is the directory relative file paths resolve against. Load sets
	// it to the directory of the configuration file.
	BaseDir string `json:"-" yaml:"-"`
}

// Dataset declares the sources and how they are combined.
type Dataset struct {
	// PrimarySource names the anchor of the join. When empty, the single
	// source without a join_key anchors.
	PrimarySource string `json:"primary_source" yaml:"primary_source"`

	// JoinMode is one of left (default), inner, right, outer.
	JoinMode string `json:"join_mode" yaml:"join_mode"`

	Sources []Source `json:"sources" yaml:"sources"`
}

// Source declares one data source.
type Source struct {
	Name string `json:"name" yaml:"name"`

	// Kind selects the loader: file, query, or table.
	Kind string `json:"kind" yaml:"kind"`

	File  SourceFile  `json:"file" yaml:"file"`
	Query SourceQuery `json:"query" yaml:"query"`
	Table SourceTable `json:"table" yaml:"table"`

	// Options is a free-form bag interpreted by the file parser. For CSV:
	//   comma (string), has_header (bool), trim_space (bool),
	//   header_map (object). For JSON: allow_arrays (bool).
	Options Options `json:"options" yaml:"options"`

	DateCol    string   `json:"date_col" yaml:"date_col"`
	Dimensions []string `json:"dimensions" yaml:"dimensions"`
	Metrics    []string `json:"metrics" yaml:"metrics"`
	JoinKey    []string `json:"join_key" yaml:"join_key"`
}

// SourceFile locates a file table. Path may be a local path (relative to the
// config directory) or an http(s) URL.
type SourceFile struct {
	Path string `json:"path" yaml:"path"`

	// Format overrides extension-based detection: csv or json.
	Format string `json:"format" yaml:"format"`
}

// SourceQuery runs SQL against a DSN.
type SourceQuery struct {
	// Driver is one of postgres, mysql, mssql, sqlite.
	Driver string `json:"driver" yaml:"driver"`
	// DSN may contain ${VAR} placeholders resolved at load time.
	DSN string `json:"dsn" yaml:"dsn"`
	SQL string `json:"sql" yaml:"sql"`
}

// SourceTable reads a whole table through a structured connection.
type SourceTable struct {
	Connection Connection `json:"connection" yaml:"connection"`
	Name       string     `json:"name" yaml:"name"`
}

// Connection holds database connection parameters. Username and Password may
// contain ${VAR} placeholders.
type Connection struct {
	Driver   string            `json:"driver" yaml:"driver"`
	Host     string            `json:"host" yaml:"host"`
	Port     int               `json:"port" yaml:"port"`
	Database string            `json:"database" yaml:"database"`
	Username string            `json:"username" yaml:"username"`
	Password string            `json:"password" yaml:"password"`
	Params   map[string]string `json:"params" yaml:"params"`
}

// DerivedMetric is a named arithmetic formula over metrics.
type DerivedMetric struct {
	Name    string `json:"name" yaml:"name"`
	Formula string `json:"formula" yaml:"formula"`
}

// Report configures the period comparison and ranking.
type Report struct {
	// PrimaryDateCol defaults to the anchor source's date_col.
	PrimaryDateCol string     `json:"primary_date_col" yaml:"primary_date_col"`
	Comparison     Comparison `json:"comparison" yaml:"comparison"`
	PrimaryDims    []string   `json:"primary_dims" yaml:"primary_dims"`
	KPIPriority    []string   `json:"kpi_priority" yaml:"kpi_priority"`
	TopN           *int       `json:"top_n" yaml:"top_n"`
	MinImpact      float64    `json:"min_impact" yaml:"min_impact"`

	// DateLayouts are Go time layouts tried before the built-in ones.
	DateLayouts []string `json:"date_layouts" yaml:"date_layouts"`
}

// Limit returns the effective top_n: DefaultTopN when unset, otherwise the
// configured value, where <= 0 means no limit.
func (r Report) Limit() int {
	if r.TopN == nil {
		return DefaultTopN
	}
	return *r.TopN
}

// Comparison holds the two periods as YYYY-MM-DD strings, inclusive.
type Comparison struct {
	CurrentStart  string `json:"current_start" yaml:"current_start"`
	CurrentEnd    string `json:"current_end" yaml:"current_end"`
	PreviousStart string `json:"previous_start" yaml:"previous_start"`
	PreviousEnd   string `json:"previous_end" yaml:"previous_end"`
}

// ApplyDefaults fills zero-valued fields that have documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Job == "" {
		c.Job = "insight"
	}
	if c.Dataset.JoinMode == "" {
		c.Dataset.JoinMode = JoinLeft
	}
	if c.Report.TopN == nil {
		n := DefaultTopN
		c.Report.TopN = &n
	}
	if c.Report.PrimaryDateCol == "" {
		if p, ok := c.Anchor(); ok {
			c.Report.PrimaryDateCol = p.DateCol
		}
	}
}

// Anchor returns the source that anchors the join: the one named by
// primary_source, otherwise the only source without a join_key.
func (c Config) Anchor() (Source, bool) {
	if c.Dataset.PrimarySource != "" {
		for _, s := range c.Dataset.Sources {
			if s.Name == c.Dataset.PrimarySource {
				return s, true
			}
		}
		return Source{}, false
	}
	if len(c.Dataset.Sources) == 1 {
		return c.Dataset.Sources[0], true
	}
	var (
		found Source
		n     int
	)
	for _, s := range c.Dataset.Sources {
		if len(s.JoinKey) == 0 {
			found = s
			n++
		}
	}
	return found, n == 1
}

// BaseMetrics returns every declared source metric, deduplicated, in
// declaration order.
func (c Config) BaseMetrics() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range c.Dataset.Sources {
		for _, m := range s.Metrics {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// Location describes where a source reads from, for logs and errors.
func (s Source) Location() string {
	switch s.Kind {
	case KindFile:
		return s.File.Path
	case KindQuery:
		return s.Query.Driver
	case KindTable:
		return fmt.Sprintf("%s:%s", s.Table.Connection.Driver, s.Table.Name)
	}
	return ""
}

// Options is a small helper to fetch typed values from arbitrary decoded maps
// without introducing a schema per parser. It performs only minimal type
// coercion and returns the provided default when a key is absent or of an
// unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character settings such as a delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			if s == `\t` {
				return '\t'
			}
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML converts the map[interface{}]interface{} values produced by
// yaml.v2 into string-keyed maps so Options behaves the same for both formats.
func (o *Options) UnmarshalYAML(unmarshal func(any) error) error {
	var tmp map[string]any
	if err := unmarshal(&tmp); err != nil {
		return err
	}
	out := Options{}
	for k, v := range tmp {
		out[k] = normalizeYAML(v)
	}
	*o = out
	return nil
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[fmt.Sprint(k)] = normalizeYAML(vv)
		}
		return m
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	}
	return v
}
