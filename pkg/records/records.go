// Package records defines the row type shared by parsers, storage backends,
// and the analysis stages. A Record maps a column name to a value; after
// schema unification the values are limited to nil, float64, string, and
// time.Time.
package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical text form of a date value.
const DateLayout = "2006-01-02"

// Record is a single row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float returns the float64 stored under key. ok is false when the value is
// nil, missing, or not a float64.
func (r Record) Float(key string) (float64, bool) {
	f, ok := r[key].(float64)
	return f, ok
}

// Time returns the time.Time stored under key.
func (r Record) Time(key string) (time.Time, bool) {
	t, ok := r[key].(time.Time)
	return t, ok
}

// Text renders a value as the text used for equality of categorical keys.
// Integral floats drop their fraction, dates use DateLayout, nil is "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(DateLayout)
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Key builds a composite key for the given columns of r. The second return is
// false when any key column is nil or absent; such rows never match.
func Key(r Record, cols []string) (string, bool) {
	var b strings.Builder
	for i, c := range cols {
		v, ok := r[c]
		if !ok || v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(Text(v))
	}
	return b.String(), true
}
