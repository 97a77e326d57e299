package schema

import (
	"insight/pkg/records"
)

// Unify validates raw against decl and returns a new Table that carries only
// the declared columns with their values cast:
//
//   - the date column to time.Time (UTC midnight), failing with
//     *DateParseError on any unparseable non-null value;
//   - metric columns to float64, failing with *MetricTypeError on any
//     non-numeric non-null value;
//   - dimension and join-key columns to their text form, compared by value.
//
// A declared column absent from raw fails with *SchemaError.
func Unify(name string, raw *Table, decl Declaration, layouts []string) (*Table, error) {
	cols := decl.Declared()
	for _, c := range cols {
		if !raw.HasColumn(c) {
			return nil, &SchemaError{Source: name, Column: c, Msg: "declared column not found in source"}
		}
	}
	if decl.DateCol != "" {
		for _, m := range decl.Metrics {
			if m == decl.DateCol {
				return nil, &SchemaError{Source: name, Column: m, Msg: "declared as both date and metric"}
			}
		}
	}
	metric := make(map[string]struct{}, len(decl.Metrics))
	for _, m := range decl.Metrics {
		metric[m] = struct{}{}
	}
	for _, d := range decl.Dimensions {
		if _, ok := metric[d]; ok {
			return nil, &SchemaError{Source: name, Column: d, Msg: "declared as both dimension and metric"}
		}
	}

	out := &Table{
		Name:       name,
		Columns:    cols,
		DateCol:    decl.DateCol,
		Dimensions: append([]string(nil), decl.Dimensions...),
		Metrics:    append([]string(nil), decl.Metrics...),
		JoinKey:    append([]string(nil), decl.JoinKey...),
		Rows:       make([]records.Record, 0, len(raw.Rows)),
	}

	for i, r := range raw.Rows {
		rec := make(records.Record, len(cols))
		for _, c := range cols {
			v := r[c]
			switch {
			case c == decl.DateCol:
				d, ok := toDate(v, layouts)
				if !ok {
					return nil, &DateParseError{Source: name, Column: c, Row: i + 1, Value: v}
				}
				rec[c] = d
			case isMetric(metric, c):
				f, ok := toFloat(v)
				if !ok {
					return nil, &MetricTypeError{Source: name, Column: c, Row: i + 1, Value: v}
				}
				rec[c] = f
			default:
				if v == nil {
					rec[c] = nil
				} else {
					rec[c] = records.Text(v)
				}
			}
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

func isMetric(set map[string]struct{}, c string) bool {
	_, ok := set[c]
	return ok
}
