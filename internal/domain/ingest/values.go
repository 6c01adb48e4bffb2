package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	trueWords  = map[string]bool{"true": true, "t": true, "yes": true, "y": true, "1": true, "on": true, "active": true, "enabled": true}
	falseWords = map[string]bool{"false": true, "f": true, "no": true, "n": true, "0": true, "off": true, "inactive": true, "disabled": true}
)

// ParseBool interprets the boolean vocabulary used in spreadsheets.
// The second return value is false when s is not a recognised word.
func ParseBool(s string) (bool, bool) {
	w := strings.ToLower(strings.TrimSpace(s))
	switch {
	case trueWords[w]:
		return true, true
	case falseWords[w]:
		return false, true
	}
	return false, false
}

// isoLayouts are unambiguous layouts tried before the slash heuristics
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// DateParse is the outcome of ParseDate
type DateParse struct {
	Time time.Time
	// Ambiguous is set when day and month could be swapped; Time is then read month-first
	Ambiguous bool
}

// ParseDate reads the date formats commonly found in catalog exports
func ParseDate(s string) (DateParse, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateParse{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateParse{Time: t}, true
		}
	}

	for _, sep := range []string{"/", ".", "-"} {
		parts := strings.Split(s, sep)
		if len(parts) != 3 || len(parts[2]) != 4 {
			continue
		}
		a, errA := strconv.Atoi(parts[0])
		b, errB := strconv.Atoi(parts[1])
		y, errY := strconv.Atoi(parts[2])
		if errA != nil || errB != nil || errY != nil {
			continue
		}
		var day, month int
		ambiguous := false
		switch {
		case sep == ".":
			// dotted dates are day-first
			day, month = a, b
		case a > 12:
			day, month = a, b
		case b > 12:
			day, month = b, a
		default:
			day, month = b, a
			ambiguous = a != b
		}
		t, err := time.Parse("2006-01-02", fmt.Sprintf("%04d-%02d-%02d", y, month, day))
		if err != nil {
			return DateParse{}, false
		}
		return DateParse{Time: t, Ambiguous: ambiguous}, true
	}
	return DateParse{}, false
}

// ToText renders a cell value as trimmed text
func ToText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Cents is a currency amount already expressed in minor units
type Cents int64
