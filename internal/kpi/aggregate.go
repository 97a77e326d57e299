package kpi

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"insight/pkg/records"
)

// AggregateRow is one dimension tuple of one period with every metric summed.
// A nil value means every contributing row was null for that metric, or the
// sum left the finite float64 range.
type AggregateRow struct {
	Dims []string
	// Null marks tuple positions whose source value was null; Dims holds ""
	// there. A nil slice means no position is null.
	Null   []bool
	Values map[string]*float64
	// Rows is the number of input rows folded into this tuple.
	Rows int
}

// Value returns the aggregate for metric and whether it is present.
func (a AggregateRow) Value(metric string) (float64, bool) {
	p := a.Values[metric]
	if p == nil {
		return 0, false
	}
	return *p, true
}

// IsNull reports whether tuple position i was null.
func (a AggregateRow) IsNull(i int) bool { return i < len(a.Null) && a.Null[i] }

// Aggregate groups rows by the dims tuple and sums metrics. A null dimension
// value forms its own group, distinct from the empty string. The result is
// sorted by tuple with nulls first.
func Aggregate(rows []records.Record, dims, metrics []string) []AggregateRow {
	index := map[string]int{}
	var out []AggregateRow
	for _, r := range rows {
		tuple := make([]string, len(dims))
		var null []bool
		for i, d := range dims {
			v := r[d]
			if v == nil {
				if null == nil {
					null = make([]bool, len(dims))
				}
				null[i] = true
				continue
			}
			tuple[i] = records.Text(v)
		}
		k := TupleKey(tuple, null)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, AggregateRow{Dims: tuple, Null: null, Values: make(map[string]*float64, len(metrics))})
			for _, m := range metrics {
				out[i].Values[m] = nil
			}
		}
		agg := &out[i]
		agg.Rows++
		for _, m := range metrics {
			v, ok := r.Float(m)
			if !ok {
				continue
			}
			if agg.Values[m] == nil {
				agg.Values[m] = new(float64)
			}
			*agg.Values[m] += v
		}
	}
	for i := range out {
		for m, v := range out[i].Values {
			if v != nil && (math.IsInf(*v, 0) || math.IsNaN(*v)) {
				out[i].Values[m] = nil
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareTuples(out[i].Dims, out[i].Null, out[j].Dims, out[j].Null) < 0
	})
	return out
}

// CompareTuples orders dimension tuples element-wise. A null position sorts
// before any value, including ""; on a common prefix the shorter tuple is
// first. an and bn may be nil when no position is null.
func CompareTuples(a []string, an []bool, b []string, bn []bool) int {
	isNull := func(n []bool, i int) bool { return i < len(n) && n[i] }
	for i := 0; i < len(a) && i < len(b); i++ {
		na, nb := isNull(an, i), isNull(bn, i)
		switch {
		case na && nb:
			continue
		case na:
			return -1
		case nb:
			return 1
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// TupleKey encodes a tuple as a map key. Values are length-prefixed and nulls
// get their own marker, so no two distinct tuples share a key.
func TupleKey(dims []string, null []bool) string {
	var b strings.Builder
	for i, d := range dims {
		if i < len(null) && null[i] {
			b.WriteString("~;")
			continue
		}
		b.WriteString(strconv.Itoa(len(d)))
		b.WriteByte(':')
		b.WriteString(d)
		b.WriteByte(';')
	}
	return b.String()
}
