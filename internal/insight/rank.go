// Package insight pairs the current and previous period aggregates, computes
// per-metric deltas, and ranks them by business impact.
package insight

import (
	"fmt"
	"math"
	"sort"

	"insight/internal/kpi"
)

// Direction of a change.
const (
	Up   = "up"
	Down = "down"
	Flat = "flat"
)

// Presence records which periods contributed a value.
const (
	Both         = "both"
	CurrentOnly  = "current_only"
	PreviousOnly = "previous_only"
)

// pctCeiling caps |delta_pct| in the impact factor.
const pctCeiling = 200.0

// Options configures ranking.
type Options struct {
	// Dims names the tuple positions of every AggregateRow.
	Dims []string
	// Metrics to compare. Empty means every metric present in the input.
	Metrics     []string
	KPIPriority []string
	// TopN truncates the ranked list; N <= 0 keeps everything.
	TopN      int
	MinImpact float64
}

// Insight is one metric change for one dimension tuple. A dimension whose
// source value was null maps to a nil pointer.
type Insight struct {
	Dimensions    map[string]*string `json:"dimensions"`
	Metric        string            `json:"metric"`
	CurrentValue  *float64          `json:"current_value"`
	PreviousValue *float64          `json:"previous_value"`
	Delta         float64           `json:"delta"`
	DeltaPct      *float64          `json:"delta_pct"`
	ImpactScore   float64           `json:"impact_score"`
	Direction     string            `json:"direction"`
	Presence      string            `json:"presence"`

	tuple    []string
	null     []bool
	priority int
}

// RangeError reports a comparison whose delta, delta_pct or impact score is
// not a finite number, which happens when finite aggregates are far enough
// apart to overflow float64.
type RangeError struct {
	Metric     string
	Dimensions []string
	Field      string
	Value      float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("insight: metric %q at %v: %s is %v", e.Metric, e.Dimensions, e.Field, e.Value)
}

// Tuple returns the dimension values in Options.Dims order. Null positions
// read as "".
func (i Insight) Tuple() []string { return i.tuple }

// Dim returns the value of dimension name, or "" when it is null or unknown.
func (i Insight) Dim(name string) string {
	if v := i.Dimensions[name]; v != nil {
		return *v
	}
	return ""
}

// Rank pairs current and previous by tuple (full outer), builds one Insight
// per tuple and metric where at least one side is present, and returns them
// ordered by impact score descending. Ties break on |delta| descending,
// tuple ascending, priority ascending, then metric name. The min-impact
// filter and top-N cut are applied last. A non-finite delta, delta_pct or
// score fails the whole ranking with *RangeError.
func Rank(current, previous []kpi.AggregateRow, opts Options) ([]Insight, error) {
	metrics := opts.Metrics
	if len(metrics) == 0 {
		metrics = metricNames(current, previous)
	}

	n := len(opts.KPIPriority)
	prio := make(map[string]int, n)
	for i, m := range opts.KPIPriority {
		if _, ok := prio[m]; !ok {
			prio[m] = i
		}
	}

	type pair struct {
		tuple     []string
		null      []bool
		cur, prev *kpi.AggregateRow
	}
	byKey := map[string]*pair{}
	var pairs []*pair
	get := func(r kpi.AggregateRow) *pair {
		k := kpi.TupleKey(r.Dims, r.Null)
		p, ok := byKey[k]
		if !ok {
			p = &pair{tuple: r.Dims, null: r.Null}
			byKey[k] = p
			pairs = append(pairs, p)
		}
		return p
	}
	for i := range current {
		get(current[i]).cur = &current[i]
	}
	for i := range previous {
		get(previous[i]).prev = &previous[i]
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return kpi.CompareTuples(pairs[i].tuple, pairs[i].null, pairs[j].tuple, pairs[j].null) < 0
	})

	var out []Insight
	for _, p := range pairs {
		for _, m := range metrics {
			var cur, prev *float64
			if p.cur != nil {
				if v, ok := p.cur.Value(m); ok {
					cur = &v
				}
			}
			if p.prev != nil {
				if v, ok := p.prev.Value(m); ok {
					prev = &v
				}
			}
			if cur == nil && prev == nil {
				continue
			}
			idx, weighted := prio[m]
			if !weighted {
				idx = n
			}
			in := newInsight(opts.Dims, p.tuple, p.null, m, cur, prev, idx, n)
			if err := checkFinite(in); err != nil {
				return nil, err
			}
			out = append(out, in)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	if opts.MinImpact > 0 {
		kept := out[:0]
		for _, in := range out {
			if in.ImpactScore >= opts.MinImpact {
				kept = append(kept, in)
			}
		}
		out = kept
	}
	if opts.TopN > 0 && len(out) > opts.TopN {
		out = out[:opts.TopN]
	}
	return out, nil
}

func checkFinite(in Insight) error {
	bad := func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
	fail := func(field string, v float64) error {
		return &RangeError{Metric: in.Metric, Dimensions: in.tuple, Field: field, Value: v}
	}
	switch {
	case bad(in.Delta):
		return fail("delta", in.Delta)
	case in.DeltaPct != nil && bad(*in.DeltaPct):
		return fail("delta_pct", *in.DeltaPct)
	case bad(in.ImpactScore):
		return fail("impact_score", in.ImpactScore)
	}
	return nil
}

func newInsight(dims, tuple []string, null []bool, metric string, cur, prev *float64, idx, n int) Insight {
	in := Insight{
		Dimensions:    make(map[string]*string, len(dims)),
		Metric:        metric,
		CurrentValue:  cur,
		PreviousValue: prev,
		tuple:         tuple,
		null:          null,
		priority:      idx,
	}
	for i, d := range dims {
		switch {
		case i >= len(tuple):
		case i < len(null) && null[i]:
			in.Dimensions[d] = nil
		default:
			v := tuple[i]
			in.Dimensions[d] = &v
		}
	}

	switch {
	case cur != nil && prev != nil:
		in.Presence = Both
		in.Delta = *cur - *prev
		if *prev != 0 {
			pct := 100 * in.Delta / *prev
			in.DeltaPct = &pct
		}
	case cur != nil:
		in.Presence = CurrentOnly
		in.Delta = *cur
	default:
		in.Presence = PreviousOnly
		in.Delta = -*prev
	}

	switch {
	case in.Delta > 0:
		in.Direction = Up
	case in.Delta < 0:
		in.Direction = Down
	default:
		in.Direction = Flat
	}

	in.ImpactScore = Score(in.Delta, in.DeltaPct, idx, n)
	return in
}

// Score is |delta| × (1 + pct_factor) × (1 + priority_weight), where
// pct_factor = min(|delta_pct|, 200) / 200 (0 when delta_pct is null) and
// priority_weight = (n − idx) / n for a metric at position idx of an n-long
// priority list (0 when idx >= n).
func Score(delta float64, deltaPct *float64, idx, n int) float64 {
	pctFactor := 0.0
	if deltaPct != nil {
		pctFactor = math.Min(math.Abs(*deltaPct), pctCeiling) / pctCeiling
	}
	weight := 0.0
	if n > 0 && idx >= 0 && idx < n {
		weight = float64(n-idx) / float64(n)
	}
	return math.Abs(delta) * (1 + pctFactor) * (1 + weight)
}

func less(a, b Insight) bool {
	if a.ImpactScore != b.ImpactScore {
		return a.ImpactScore > b.ImpactScore
	}
	if da, db := math.Abs(a.Delta), math.Abs(b.Delta); da != db {
		return da > db
	}
	if c := kpi.CompareTuples(a.tuple, a.null, b.tuple, b.null); c != 0 {
		return c < 0
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.Metric < b.Metric
}

func metricNames(sets ...[]kpi.AggregateRow) []string {
	seen := map[string]bool{}
	var out []string
	for _, rows := range sets {
		for _, r := range rows {
			for m := range r.Values {
				if !seen[m] {
					seen[m] = true
					out = append(out, m)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}
