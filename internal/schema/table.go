// Package schema holds the unified table model and the unifier that turns a
// loaded source into it. A unified table carries only its declared columns:
// the date column as time.Time, metrics as float64, dimensions and join keys
// as opaque text. Absent values are nil.
package schema

import "insight/pkg/records"

// Table is an ordered set of rows plus the column roles that produced it.
// Loaders return Tables with only Name, Columns and Rows set; Unify fills in
// the roles.
type Table struct {
	Name       string
	Columns    []string
	DateCol    string
	Dimensions []string
	Metrics    []string
	JoinKey    []string
	Rows       []records.Record
}

// Declaration names the column roles a source promises to expose.
type Declaration struct {
	DateCol    string
	Dimensions []string
	Metrics    []string
	JoinKey    []string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether name is one of t's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddMetric appends a metric column. Existing rows are not touched; callers
// set the value on every row.
func (t *Table) AddMetric(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for _, m := range t.Metrics {
		if m == name {
			return
		}
	}
	t.Metrics = append(t.Metrics, name)
}

// Declared returns the declared columns in their canonical order: date,
// dimensions, metrics, then join keys, without duplicates.
func (d Declaration) Declared() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(cols ...string) {
		for _, c := range cols {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	add(d.DateCol)
	add(d.Dimensions...)
	add(d.Metrics...)
	add(d.JoinKey...)
	return out
}
