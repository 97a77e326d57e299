package kpi

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"insight/internal/schema"
	"insight/pkg/records"
)

func day(s string) time.Time {
	t, err := time.Parse(records.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustPeriod(t *testing.T, name, start, end string) Period {
	t.Helper()
	p, err := ParsePeriod(name, start, end)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

/*
TestDerive_NullPropagation verifies ctr = clicks / impressions is null where
impressions is zero and that derived columns are registered as metrics.
*/
func TestDerive_NullPropagation(t *testing.T) {
	tbl := &schema.Table{
		Name:    "ads",
		Columns: []string{"clicks", "impressions"},
		Metrics: []string{"clicks", "impressions"},
		Rows: []records.Record{
			{"clicks": 10.0, "impressions": 100.0},
			{"clicks": 3.0, "impressions": 0.0},
			{"clicks": nil, "impressions": 50.0},
		},
	}
	fs, err := Compile([]Definition{
		{Name: "ctr", Formula: "clicks / impressions"},
		{Name: "ctr_pct", Formula: "ctr * 100"},
	}, tbl.Metrics)
	if err != nil {
		t.Fatal(err)
	}
	if err := Derive(tbl, fs); err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if got := tbl.Rows[0]["ctr_pct"]; got != 10.0 {
		t.Fatalf("row 0 ctr_pct = %v, want 10", got)
	}
	for i := 1; i < 3; i++ {
		if tbl.Rows[i]["ctr"] != nil || tbl.Rows[i]["ctr_pct"] != nil {
			t.Fatalf("row %d should be null: %+v", i, tbl.Rows[i])
		}
	}
	want := []string{"clicks", "impressions", "ctr", "ctr_pct"}
	if !reflect.DeepEqual(tbl.Metrics, want) || !reflect.DeepEqual(tbl.Columns, want) {
		t.Fatalf("Metrics=%v Columns=%v", tbl.Metrics, tbl.Columns)
	}
}

/*
TestDerive_MissingColumn verifies a formula referencing a column absent from
the table fails before any row is touched.
*/
func TestDerive_MissingColumn(t *testing.T) {
	tbl := &schema.Table{Name: "t", Columns: []string{"a"}, Rows: []records.Record{{"a": 1.0}}}
	f, _ := Parse("x", "a / b")
	var fe *FormulaError
	if err := Derive(tbl, []*Formula{f}); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FormulaError", err)
	}
	if _, ok := tbl.Rows[0]["x"]; ok {
		t.Fatalf("row mutated on failure")
	}
}

/*
TestParsePeriod verifies bound parsing and ordering.
*/
func TestParsePeriod(t *testing.T) {
	p := mustPeriod(t, Current, "2024-01-08", "2024-01-14")
	if p.Days() != 7 {
		t.Fatalf("Days = %d", p.Days())
	}
	if !p.Contains(day("2024-01-08")) || !p.Contains(day("2024-01-14").Add(23*time.Hour)) {
		t.Fatalf("bounds must be inclusive")
	}
	if p.Contains(day("2024-01-15")) || p.Contains(day("2024-01-07")) {
		t.Fatalf("outside days must not be contained")
	}
	if _, err := ParsePeriod(Current, "2024-01-14", "2024-01-08"); err == nil {
		t.Fatalf("expected error for reversed period")
	}
	if _, err := ParsePeriod(Current, "Jan 1", "2024-01-08"); err == nil {
		t.Fatalf("expected error for bad date")
	}
}

/*
TestSplit verifies rows are routed by inclusive period, null and outside dates
are dropped, and overlapping periods fail.
*/
func TestSplit(t *testing.T) {
	tbl := &schema.Table{
		Name:    "t",
		Columns: []string{"date", "v"},
		DateCol: "date",
		Rows: []records.Record{
			{"date": day("2024-01-01"), "v": 1.0},
			{"date": day("2024-01-07"), "v": 2.0},
			{"date": day("2024-01-08"), "v": 3.0},
			{"date": day("2024-01-14"), "v": 4.0},
			{"date": day("2024-01-15"), "v": 5.0},
			{"date": nil, "v": 6.0},
		},
	}
	cur := mustPeriod(t, Current, "2024-01-08", "2024-01-14")
	prev := mustPeriod(t, Previous, "2024-01-01", "2024-01-07")

	c, p, dropped, err := Split(tbl, "date", cur, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 2 || len(p) != 2 || dropped != 2 {
		t.Fatalf("got cur=%d prev=%d dropped=%d", len(c), len(p), dropped)
	}
	if c[0]["v"] != 3.0 || p[1]["v"] != 2.0 {
		t.Fatalf("row order not preserved: %v %v", c, p)
	}

	overlap := mustPeriod(t, Previous, "2024-01-05", "2024-01-08")
	if err := CheckPeriods(cur, overlap); err == nil {
		t.Fatalf("CheckPeriods should report overlap")
	}
	_, _, _, err = Split(tbl, "date", cur, overlap)
	var oe *PeriodOverlapError
	if !errors.As(err, &oe) || oe.Date == nil || !oe.Date.Equal(day("2024-01-08")) {
		t.Fatalf("err = %v, want *PeriodOverlapError on 2024-01-08", err)
	}

	if _, _, _, err := Split(tbl, "missing", cur, prev); err == nil {
		t.Fatalf("expected error for missing date column")
	}
}

/*
TestAggregate verifies grouping, summation conservation, null handling, and
tuple ordering.
*/
func TestAggregate(t *testing.T) {
	rows := []records.Record{
		{"campaign": "B", "region": "eu", "spend": 5.0, "conv": nil},
		{"campaign": "A", "region": "us", "spend": 10.0, "conv": 1.0},
		{"campaign": "A", "region": "us", "spend": nil, "conv": 2.0},
		{"campaign": "A", "region": "eu", "spend": 1.5, "conv": nil},
		{"campaign": "B", "region": "eu", "spend": 2.5, "conv": nil},
		{"campaign": nil, "region": "eu", "spend": 1.0, "conv": nil},
	}
	got := Aggregate(rows, []string{"campaign", "region"}, []string{"spend", "conv"})

	var tuples [][]string
	for _, a := range got {
		tuples = append(tuples, a.Dims)
	}
	wantTuples := [][]string{{"", "eu"}, {"A", "eu"}, {"A", "us"}, {"B", "eu"}}
	if !reflect.DeepEqual(tuples, wantTuples) {
		t.Fatalf("tuples = %v, want %v", tuples, wantTuples)
	}
	if !got[0].IsNull(0) || got[0].IsNull(1) || got[1].IsNull(0) {
		t.Fatalf("null mask = %v / %v", got[0].Null, got[1].Null)
	}

	if v, ok := got[2].Value("spend"); !ok || v != 10 {
		t.Fatalf("A/us spend = %v,%v", v, ok)
	}
	if v, ok := got[2].Value("conv"); !ok || v != 3 {
		t.Fatalf("A/us conv = %v,%v", v, ok)
	}
	if got[2].Rows != 2 {
		t.Fatalf("A/us rows = %d", got[2].Rows)
	}
	if _, ok := got[3].Value("conv"); ok {
		t.Fatalf("B/eu conv must stay null when every row is null")
	}

	var total float64
	for _, a := range got {
		if v, ok := a.Value("spend"); ok {
			total += v
		}
	}
	if total != 20 {
		t.Fatalf("spend not conserved: %v", total)
	}

	if len(Aggregate(nil, []string{"campaign"}, []string{"spend"})) != 0 {
		t.Fatalf("empty input should aggregate to nothing")
	}
}

/*
TestCompareTuples verifies element-wise ordering with prefix handling and
nulls sorting before every value.
*/
func TestCompareTuples(t *testing.T) {
	cases := []struct {
		a    []string
		an   []bool
		b    []string
		bn   []bool
		want int
	}{
		{[]string{"a"}, nil, []string{"b"}, nil, -1},
		{[]string{"b", "a"}, nil, []string{"a", "z"}, nil, 1},
		{[]string{"a"}, nil, []string{"a", "b"}, nil, -1},
		{[]string{"a", "b"}, nil, []string{"a", "b"}, nil, 0},
		{nil, nil, nil, nil, 0},
		{[]string{""}, []bool{true}, []string{""}, nil, -1},
		{[]string{"a", ""}, nil, []string{"a", ""}, []bool{false, true}, 1},
		{[]string{""}, []bool{true}, []string{""}, []bool{true}, 0},
	}
	for _, tc := range cases {
		if got := CompareTuples(tc.a, tc.an, tc.b, tc.bn); got != tc.want {
			t.Errorf("CompareTuples(%v%v, %v%v) = %d, want %d", tc.a, tc.an, tc.b, tc.bn, got, tc.want)
		}
	}
}

/*
TestAggregate_NullVersusEmpty verifies a null dimension and an empty-string
dimension form separate groups.
*/
func TestAggregate_NullVersusEmpty(t *testing.T) {
	rows := []records.Record{
		{"campaign": "", "spend": 1.0},
		{"campaign": nil, "spend": 2.0},
		{"campaign": "", "spend": 4.0},
		{"campaign": "A|B", "spend": 8.0},
	}
	got := Aggregate(rows, []string{"campaign"}, []string{"spend"})
	if len(got) != 3 {
		t.Fatalf("groups = %+v, want 3", got)
	}
	if !got[0].IsNull(0) || got[1].IsNull(0) {
		t.Fatalf("order = %+v, want null group first", got)
	}
	if v, _ := got[0].Value("spend"); v != 2 {
		t.Fatalf("null group spend = %v, want 2", v)
	}
	if v, _ := got[1].Value("spend"); v != 5 {
		t.Fatalf("empty group spend = %v, want 5", v)
	}
	if TupleKey([]string{"a;1:b"}, nil) == TupleKey([]string{"a", "b"}, nil) {
		t.Fatal("tuple keys collide")
	}
}

/*
TestAggregate_Overflow verifies a sum that leaves the finite range becomes
null instead of Inf, while other groups are unaffected.
*/
func TestAggregate_Overflow(t *testing.T) {
	rows := []records.Record{
		{"campaign": "A", "spend": math.MaxFloat64},
		{"campaign": "A", "spend": math.MaxFloat64},
		{"campaign": "B", "spend": math.MaxFloat64},
	}
	got := Aggregate(rows, []string{"campaign"}, []string{"spend"})
	if _, ok := got[0].Value("spend"); ok {
		t.Fatalf("A spend = %v, want null", *got[0].Values["spend"])
	}
	if v, ok := got[1].Value("spend"); !ok || v != math.MaxFloat64 {
		t.Fatalf("B spend = %v,%v", v, ok)
	}
}
