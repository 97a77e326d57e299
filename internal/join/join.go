// Package join combines unified source tables into one table by equi-join on
// each secondary source's join key.
package join

import (
	"fmt"
	"strings"

	"insight/internal/schema"
	"insight/pkg/records"
)

// Mode selects which unmatched rows survive a join. The anchor is always the
// left side.
type Mode string

const (
	Left  Mode = "left"
	Inner Mode = "inner"
	Right Mode = "right"
	Outer Mode = "outer"
)

// ParseMode maps a configured join mode to a Mode. Empty means Left.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Left, nil
	case Left, Inner, Right, Outer:
		return m, nil
	}
	return "", fmt.Errorf("join: unknown mode %q", s)
}

func (m Mode) keepLeft() bool  { return m == Left || m == Outer }
func (m Mode) keepRight() bool { return m == Right || m == Outer }

// JoinKeyError reports a join key column missing on one side. Side is
// "left" for the accumulated table and "right" for the joining source.
type JoinKeyError struct {
	Source string
	Column string
	Side   string
}

func (e *JoinKeyError) Error() string {
	return fmt.Sprintf("join: source %q: key column %q missing on the %s side", e.Source, e.Column, e.Side)
}

// CollisionError reports a non-key column present on both sides of a join.
type CollisionError struct {
	Column string
	Left   string
	Right  string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("join: column %q exists in both %q and %q and is not a join key", e.Column, e.Left, e.Right)
}

// Join folds every secondary table onto the anchor in the given order. The
// anchor is the table named primary, or the first table without a join key
// when primary is empty. A single table is returned unchanged.
//
// Row order is deterministic: each left row in order followed by its
// matches in right order; right/outer modes then append unmatched right rows
// in order. Null key values never match.
func Join(tables []*schema.Table, primary string, mode Mode) (*schema.Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("join: no tables")
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	ai := -1
	for i, t := range tables {
		if (primary != "" && t.Name == primary) || (primary == "" && len(t.JoinKey) == 0) {
			ai = i
			break
		}
	}
	if ai < 0 {
		if primary != "" {
			return nil, fmt.Errorf("join: primary source %q not among loaded tables", primary)
		}
		return nil, fmt.Errorf("join: no anchor table (every table declares a join key)")
	}

	anchor := tables[ai]
	acc := &schema.Table{
		Name:       anchor.Name,
		Columns:    append([]string(nil), anchor.Columns...),
		DateCol:    anchor.DateCol,
		Dimensions: append([]string(nil), anchor.Dimensions...),
		Metrics:    append([]string(nil), anchor.Metrics...),
		JoinKey:    append([]string(nil), anchor.JoinKey...),
		Rows:       make([]records.Record, len(anchor.Rows)),
	}
	for i, r := range anchor.Rows {
		acc.Rows[i] = r.Clone()
	}
	owner := make(map[string]string, len(acc.Columns))
	for _, c := range acc.Columns {
		owner[c] = anchor.Name
	}

	for i, t := range tables {
		if i == ai {
			continue
		}
		var err error
		if acc, err = joinOne(acc, t, owner, mode); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func joinOne(left, right *schema.Table, owner map[string]string, mode Mode) (*schema.Table, error) {
	keys := right.JoinKey
	if len(keys) == 0 {
		return nil, fmt.Errorf("join: source %q is not the anchor and declares no join key", right.Name)
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !left.HasColumn(k) {
			return nil, &JoinKeyError{Source: right.Name, Column: k, Side: "left"}
		}
		if !right.HasColumn(k) {
			return nil, &JoinKeyError{Source: right.Name, Column: k, Side: "right"}
		}
		isKey[k] = true
	}

	var extra []string
	for _, c := range right.Columns {
		if isKey[c] {
			continue
		}
		if left.HasColumn(c) {
			return nil, &CollisionError{Column: c, Left: owner[c], Right: right.Name}
		}
		extra = append(extra, c)
		owner[c] = right.Name
	}

	index := map[string][]int{}
	for i, r := range right.Rows {
		if k, ok := records.Key(r, keys); ok {
			index[k] = append(index[k], i)
		}
	}

	out := &schema.Table{
		Name:       left.Name,
		Columns:    append(append([]string(nil), left.Columns...), extra...),
		DateCol:    left.DateCol,
		Dimensions: appendNew(left.Dimensions, right.Dimensions),
		Metrics:    appendNew(left.Metrics, right.Metrics),
		JoinKey:    left.JoinKey,
	}

	matched := make([]bool, len(right.Rows))
	for _, l := range left.Rows {
		var hits []int
		if k, ok := records.Key(l, keys); ok {
			hits = index[k]
		}
		if len(hits) == 0 {
			if mode.keepLeft() {
				row := l.Clone()
				for _, c := range extra {
					row[c] = nil
				}
				out.Rows = append(out.Rows, row)
			}
			continue
		}
		for _, h := range hits {
			matched[h] = true
			row := l.Clone()
			for _, c := range extra {
				row[c] = right.Rows[h][c]
			}
			out.Rows = append(out.Rows, row)
		}
	}

	if mode.keepRight() {
		for i, r := range right.Rows {
			if matched[i] {
				continue
			}
			row := make(records.Record, len(out.Columns))
			for _, c := range left.Columns {
				row[c] = nil
			}
			for _, k := range keys {
				row[k] = r[k]
			}
			for _, c := range extra {
				row[c] = r[c]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func appendNew(base, add []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
