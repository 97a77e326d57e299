package kpi

import (
	"fmt"

	"insight/internal/schema"
)

// Derive evaluates formulas row by row in declared order and appends each
// result as a metric column of t. A row whose formula yields no value gets a
// nil entry. Every referenced column must already be on t.
func Derive(t *schema.Table, formulas []*Formula) error {
	for _, f := range formulas {
		for _, ref := range f.Refs {
			if !t.HasColumn(ref) {
				return &FormulaError{Metric: f.Name, Formula: f.Source, Msg: fmt.Sprintf("column %q is not in table %q", ref, t.Name)}
			}
		}
		if t.HasColumn(f.Name) {
			return &FormulaError{Metric: f.Name, Formula: f.Source, Msg: fmt.Sprintf("table %q already has a column with this name", t.Name)}
		}
		for _, r := range t.Rows {
			if v, ok := f.Eval(r); ok {
				r[f.Name] = v
			} else {
				r[f.Name] = nil
			}
		}
		t.AddMetric(f.Name)
	}
	return nil
}
