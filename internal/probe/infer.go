package probe

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// inferTypeForColumn picks the narrowest type every non-empty value
// satisfies: integer, boolean, real, date, timestamp, then text.
func inferTypeForColumn(values []string) string {
	nonEmpty := nonEmptyTrimmed(values)
	switch {
	case len(nonEmpty) == 0:
		return "text"
	case allMatch(nonEmpty, isInt):
		return "integer"
	case allMatch(nonEmpty, isBool):
		return "boolean"
	case allMatch(nonEmpty, isNumber):
		return "real"
	}

	anyTime := false
	for _, v := range nonEmpty {
		ok, hasTime := parseDateOrTimestamp(v)
		if !ok {
			return "text"
		}
		anyTime = anyTime || hasTime
	}
	if anyTime {
		return "timestamp"
	}
	return "date"
}

func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isBool accepts common textual booleans. 1/0 columns are integers.
func isBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	}
	return false
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

// isNumber accepts decimal or scientific notation, so a column mixing
// integers and decimals is real.
func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// parseDateOrTimestamp reports whether s parses with any known layout and
// whether that layout carries a time of day.
func parseDateOrTimestamp(s string) (ok bool, hasTime bool) {
	st := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, st); err == nil {
			return true, true
		}
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, st); err == nil {
			return true, false
		}
	}
	return false, false
}

// normalizeFieldName turns arbitrary text into a lowercase ASCII identifier:
// accents stripped, runs of space, dash and dot collapsed to one underscore,
// anything else dropped. Empty results become "insight".
func normalizeFieldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	underscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !underscore {
				b.WriteRune('_')
				underscore = true
			}
		}
	}
	if name := strings.Trim(b.String(), "_"); name != "" {
		return name
	}
	return "insight"
}

// dateLayouts are common day formats.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"01.02.2006",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
	"20060102",
}

// timestampLayouts carry a time of day.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
}

// dateLayoutPreference breaks ties between layouts that match equally many
// samples: day-month-year first, then ISO, then month-day-year.
func dateLayoutPreference(layout string) int {
	switch layout {
	case "02.01.2006", "02/01/2006", "2 Jan 2006", "02-Jan-2006":
		return 3
	case "2006-01-02", "2006/01/02", "20060102":
		return 2
	case "01.02.2006", "01/02/2006":
		return 1
	}
	return 0
}

func timestampLayoutPreference(layout string) int {
	switch layout {
	case time.RFC3339Nano:
		return 3
	case time.RFC3339:
		return 2
	}
	return 1
}

// selectBestLayout returns the layout matching the most samples, breaking
// ties by pref and then by position in layouts. "" when nothing matches.
func selectBestLayout(samples, layouts []string, pref func(string) int) string {
	best, bestScore, bestPref := "", 0, -1
	for _, lay := range layouts {
		score := 0
		for _, s := range samples {
			if _, err := time.Parse(lay, s); err == nil {
				score++
			}
		}
		if score == 0 {
			continue
		}
		if p := pref(lay); score > bestScore || (score == bestScore && p > bestPref) {
			best, bestScore, bestPref = lay, score, p
		}
	}
	return best
}
