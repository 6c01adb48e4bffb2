package ingestapp

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CentsThreshold is the smallest whole number read as already being in cents.
// Whole numbers below it are read as major units. The heuristic is ambiguous
// for low-priced catalogs that export cents (e.g. "999").
const CentsThreshold = 1000

var (
	hundred        = decimal.NewFromInt(100)
	plainNumber    = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)$`)
	groupedThouCom = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+$`)
	groupedThouDot = regexp.MustCompile(`^[-+]?\d{1,3}(\.\d{3})+$`)
	numericRun     = regexp.MustCompile(`[-+]?\d+([.,]\d+)?`)
	currencyWords  = []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "usd", "eur", "gbp"}
)

// parsedNumber is a number read from a cell
type parsedNumber struct {
	Value       decimal.Decimal
	HasFraction bool
}

// parsePlainNumber accepts numeric values and strictly formatted numeric text
func parsePlainNumber(v any) (parsedNumber, bool) {
	switch val := v.(type) {
	case int:
		return parsedNumber{Value: decimal.NewFromInt(int64(val))}, true
	case int64:
		return parsedNumber{Value: decimal.NewFromInt(val)}, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return parsedNumber{}, false
		}
		return parsedNumber{Value: decimal.NewFromFloat(val), HasFraction: val != math.Trunc(val)}, true
	case decimal.Decimal:
		return parsedNumber{Value: val, HasFraction: !val.Equal(val.Truncate(0))}, true
	case json.Number:
		text := val.String()
		d, err := decimal.NewFromString(text)
		if err != nil {
			return parsedNumber{}, false
		}
		mantissa, _, _ := strings.Cut(strings.ToLower(text), "e")
		return parsedNumber{Value: d, HasFraction: strings.Contains(mantissa, ".") || !d.Equal(d.Truncate(0))}, true
	case string:
		s := strings.TrimSpace(val)
		if !plainNumber.MatchString(s) {
			return parsedNumber{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return parsedNumber{}, false
		}
		return parsedNumber{Value: d, HasFraction: strings.Contains(s, ".")}, true
	}
	return parsedNumber{}, false
}

// cleanNumber strips currency symbols, codes, spaces and thousands separators.
// A lone comma followed by one or two digits is read as a decimal comma.
func cleanNumber(s string) (parsedNumber, bool) {
	s = strings.TrimSpace(s)
	for _, w := range currencyWords {
		s = strings.ReplaceAll(s, w, "")
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r), r == '(', r == ')', r == '\'':
		default:
			return parsedNumber{}, false
		}
	}
	s = b.String()
	if s == "" {
		return parsedNumber{}, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,50
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.50
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if groupedThouCom.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			return parsedNumber{}, false
		}
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		if !groupedThouDot.MatchString(s) {
			return parsedNumber{}, false
		}
		s = strings.ReplaceAll(s, ".", "")
	}

	n, ok := parsePlainNumber(s)
	if !ok {
		return parsedNumber{}, false
	}
	if negative {
		n.Value = n.Value.Neg()
	}
	return n, true
}

// firstNumber extracts the first numeric run of s, e.g. "approx 12.5 kg"
func firstNumber(s string) (parsedNumber, bool) {
	m := numericRun.FindString(s)
	if m == "" {
		return parsedNumber{}, false
	}
	return cleanNumber(m)
}

// toCents converts a price to integer cents
func toCents(n parsedNumber) int64 {
	if n.HasFraction || n.Value.Abs().LessThan(decimal.NewFromInt(CentsThreshold)) {
		return n.Value.Mul(hundred).Round(0).IntPart()
	}
	return n.Value.Round(0).IntPart()
}

// formatCents renders cents as a major-unit amount for messages
func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// toText renders non-string scalars the way a user typed them
func toText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, false
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case decimal.Decimal:
		return val.String(), true
	}
	return "", false
}
