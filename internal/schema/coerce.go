package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDateLayouts are tried, in order, after any caller-supplied layouts.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02.01.2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// toDate converts v to a UTC midnight time.Time. nil and empty strings map to
// (nil, true); ok is false when v cannot be interpreted as a date.
func toDate(v any, layouts []string) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case time.Time:
		return day(t), true
	case []byte:
		return toDate(string(t), layouts)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, true
		}
		for _, l := range layouts {
			if ts, err := time.Parse(l, s); err == nil {
				return day(ts), true
			}
		}
		for _, l := range DefaultDateLayouts {
			if ts, err := time.Parse(l, s); err == nil {
				return day(ts), true
			}
		}
	}
	return nil, false
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// toFloat converts v to float64. nil and blank strings map to (nil, true);
// ok is false for non-numeric or non-finite values.
func toFloat(v any) (any, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil, true
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return nil, false
		}
		f = p
	case []byte:
		return toFloat(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, true
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		f = p
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}
