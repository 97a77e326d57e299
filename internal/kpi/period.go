package kpi

import (
	"fmt"
	"strings"
	"time"

	"insight/internal/schema"
	"insight/pkg/records"
)

// Period names.
const (
	Current  = "current"
	Previous = "previous"
)

// Period is an inclusive date range [Start, End] at day granularity.
type Period struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParsePeriod parses YYYY-MM-DD bounds. start must not be after end.
func ParsePeriod(name, start, end string) (Period, error) {
	s, err := time.Parse(records.DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Period{}, fmt.Errorf("%s period start %q: %w", name, start, err)
	}
	e, err := time.Parse(records.DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Period{}, fmt.Errorf("%s period end %q: %w", name, end, err)
	}
	if e.Before(s) {
		return Period{}, fmt.Errorf("%s period ends (%s) before it starts (%s)", name, end, start)
	}
	return Period{Name: name, Start: s, End: e}, nil
}

// Contains reports whether d falls on a day within p.
func (p Period) Contains(d time.Time) bool {
	day := truncateDay(d)
	return !day.Before(p.Start) && !day.After(p.End)
}

// Overlaps reports whether p and q share at least one day.
func (p Period) Overlaps(q Period) bool {
	return !p.End.Before(q.Start) && !q.End.Before(p.Start)
}

// Days is the number of calendar days in p.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

func (p Period) String() string {
	return fmt.Sprintf("%s [%s, %s]", p.Name, p.Start.Format(records.DateLayout), p.End.Format(records.DateLayout))
}

// PeriodOverlapError reports comparison periods that share days. Date is
// set when the overlap was found on a concrete row.
type PeriodOverlapError struct {
	Current  Period
	Previous Period
	Date     *time.Time
}

func (e *PeriodOverlapError) Error() string {
	if e.Date != nil {
		return fmt.Sprintf("period overlap: %s falls in both %s and %s", e.Date.Format(records.DateLayout), e.Current, e.Previous)
	}
	return fmt.Sprintf("period overlap: %s and %s share days", e.Current, e.Previous)
}

// CheckPeriods returns a *PeriodOverlapError when current and previous
// overlap.
func CheckPeriods(current, previous Period) error {
	if current.Overlaps(previous) {
		return &PeriodOverlapError{Current: current, Previous: previous}
	}
	return nil
}

// Split partitions t's rows by dateCol into the current and previous periods.
// Rows in neither period, or with a null date, are counted in dropped.
func Split(t *schema.Table, dateCol string, current, previous Period) (cur, prev []records.Record, dropped int, err error) {
	if !t.HasColumn(dateCol) {
		return nil, nil, 0, &schema.SchemaError{Source: t.Name, Column: dateCol, Msg: "date column not found"}
	}
	for _, r := range t.Rows {
		d, ok := r.Time(dateCol)
		if !ok {
			dropped++
			continue
		}
		inCur, inPrev := current.Contains(d), previous.Contains(d)
		switch {
		case inCur && inPrev:
			day := truncateDay(d)
			return nil, nil, 0, &PeriodOverlapError{Current: current, Previous: previous, Date: &day}
		case inCur:
			cur = append(cur, r)
		case inPrev:
			prev = append(prev, r)
		default:
			dropped++
		}
	}
	return cur, prev, dropped, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
