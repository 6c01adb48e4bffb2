package mapping

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/erp/ingest/internal/domain/ingest"
)

const (
	minShapeScore   = 0.6
	shapeWeight     = 0.8
	nameHintWeight  = 0.2
	statisticalBase = 60.0
	statisticalSpan = 25.0
)

var (
	moneyPattern = regexp.MustCompile(`^[-+]?[$€£¥]?\s?\d{1,3}([,.\s]?\d{3})*([.,]\d{1,2})?\s?(€|EUR|USD|GBP)?$`)
	urlPattern   = regexp.MustCompile(`^https?://\S+$`)
	skuPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-./]{2,39}$`)
)

// StatisticalStrategy matches columns by the shape of their values. Generic
// kinds (numbers, text) also need some resemblance in the name.
type StatisticalStrategy struct{}

// Name implements Strategy
func (StatisticalStrategy) Name() string { return ingest.StrategyStatistical }

// Candidates implements Strategy
func (StatisticalStrategy) Candidates(_ context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error) {
	var out []ingest.FieldMapping
	for _, sf := range fields {
		if len(sf.SampleValues) == 0 {
			continue
		}
		for _, tf := range schema.Fields {
			shape := shapeScore(sf, tf.Kind)
			if shape < minShapeScore {
				continue
			}
			hint := nameHint(sf.Name, tf)
			if hint == 0 && !distinctiveKind(tf.Kind) {
				continue
			}
			score := shapeWeight*shape + nameHintWeight*hint
			confidence := statisticalBase + statisticalSpan*score
			out = append(out, newMapping(sf.Name, tf.Name, confidence, ingest.StrategyStatistical,
				fmt.Sprintf("values look like %s (shape %.2f, name %.2f)", tf.Kind, shape, hint)))
		}
	}
	return out, nil
}

// distinctiveKind reports kinds whose value shape alone identifies the field
func distinctiveKind(k ingest.FieldKind) bool {
	switch k {
	case ingest.KindBoolean, ingest.KindDate, ingest.KindURL:
		return true
	}
	return false
}

// shapeScore rates how well sample values fit a target kind, 0..1
func shapeScore(sf ingest.SourceField, kind ingest.FieldKind) float64 {
	switch kind {
	case ingest.KindBoolean:
		if sf.DataType == ingest.DataTypeBoolean {
			return 1
		}
	case ingest.KindDate:
		if sf.DataType == ingest.DataTypeDate {
			return 1
		}
	case ingest.KindCurrency:
		if sf.DataType == ingest.DataTypeNumber {
			return 0.9
		}
		return ratio(sf.SampleValues, moneyPattern.MatchString)
	case ingest.KindDecimal:
		if sf.DataType == ingest.DataTypeNumber {
			return 0.9
		}
	case ingest.KindInteger:
		if sf.DataType == ingest.DataTypeNumber {
			return 0.5 + 0.5*ratio(sf.SampleValues, isIntegerText)
		}
	case ingest.KindURL:
		return ratio(sf.SampleValues, urlPattern.MatchString)
	case ingest.KindSKU:
		if sf.UniquenessPercentage < 95 {
			return 0
		}
		return ratio(sf.SampleValues, func(s string) bool { return skuPattern.MatchString(s) && hasDigit(s) })
	case ingest.KindText:
		if sf.DataType == ingest.DataTypeString {
			return 0.4 + 0.6*ratio(sf.SampleValues, func(s string) bool { return len(s) > 40 })
		}
	case ingest.KindString:
		if sf.DataType == ingest.DataTypeString {
			return 0.7
		}
	}
	return 0
}

func ratio(values []string, pred func(string) bool) float64 {
	if len(values) == 0 {
		return 0
	}
	hits := 0
	for _, v := range values {
		if pred(v) {
			hits++
		}
	}
	return float64(hits) / float64(len(values))
}

func isIntegerText(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
