package extract

import (
	"fmt"
	"strings"
)

// StrategyKind is one of the fixed delimited-text parse strategies
type StrategyKind int

const (
	StrategyStandard StrategyKind = iota
	StrategyAlternativeDelimiter
	StrategyComplexQuoted
	StrategyManualFallback
)

// AllStrategies lists the strategies in evaluation order
var AllStrategies = []StrategyKind{
	StrategyStandard,
	StrategyAlternativeDelimiter,
	StrategyComplexQuoted,
	StrategyManualFallback,
}

// String returns the strategy name reported in parse metadata
func (k StrategyKind) String() string {
	switch k {
	case StrategyStandard:
		return "rfc4180"
	case StrategyAlternativeDelimiter:
		return "alternative-delimiter"
	case StrategyComplexQuoted:
		return "complex-quoted"
	case StrategyManualFallback:
		return "manual-fallback"
	default:
		return fmt.Sprintf("strategy(%d)", int(k))
	}
}

// BaseConfidence is the prior confidence of the strategy
func (k StrategyKind) BaseConfidence() float64 {
	switch k {
	case StrategyStandard:
		return 95
	case StrategyAlternativeDelimiter:
		return 90
	case StrategyComplexQuoted:
		return 85
	default:
		return 70
	}
}

// Band returns the inclusive confidence range the strategy may report
func (k StrategyKind) Band() (float64, float64) {
	switch k {
	case StrategyStandard:
		return 75, 100
	case StrategyAlternativeDelimiter, StrategyComplexQuoted:
		return 60, 95
	default:
		return 60, 90
	}
}

// Clamp restricts confidence to the strategy band
func (k StrategyKind) Clamp(confidence float64) float64 {
	lo, hi := k.Band()
	if confidence < lo {
		return lo
	}
	if confidence > hi {
		return hi
	}
	return confidence
}

// CanHandle reports whether the strategy applies to the detected input
func (k StrategyKind) CanHandle(d *Detection) bool {
	switch k {
	case StrategyStandard:
		return d.Delimiter == ',' || d.Delimiter == 0
	case StrategyAlternativeDelimiter:
		return d.Delimiter != ',' && d.Delimiter != 0
	case StrategyComplexQuoted:
		return d.HasQuotes && (d.MultilineQuoted || d.BackslashEscapes)
	case StrategyManualFallback:
		return true
	default:
		return false
	}
}

// delimiterFor is the delimiter the strategy parses with
func (k StrategyKind) delimiterFor(d *Detection) rune {
	switch k {
	case StrategyStandard:
		return ','
	default:
		if d.Delimiter == 0 {
			return ','
		}
		return d.Delimiter
	}
}

// Execute parses the detected text into raw records
func (k StrategyKind) Execute(d *Detection) ([][]string, []Issue, error) {
	delim := k.delimiterFor(d)
	switch k {
	case StrategyStandard:
		return NewDelimitedReader(WithDelimiter(delim)).ReadAll(d.Text)
	case StrategyAlternativeDelimiter:
		return NewDelimitedReader(
			WithDelimiter(delim),
			WithLazyQuotes(true),
			WithMaxRecordErrors(10),
		).ReadAll(d.Text)
	case StrategyComplexQuoted:
		text := strings.ReplaceAll(d.Text, `\"`, `""`)
		return NewDelimitedReader(
			WithDelimiter(delim),
			WithLazyQuotes(true),
			WithMaxRecordErrors(10),
		).ReadAll(text)
	case StrategyManualFallback:
		return splitManual(d.Text, delim), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown strategy %d", int(k))
	}
}
