package ingestapp

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gosimple/slug"

	"github.com/erp/ingest/internal/domain/ingest"
)

// Confidence threshold for applying a fix without an explicit accept step
const AutoApplyConfidence = 90.0

const minSKULength = 3

// FixContext is what a pattern sees when proposing a fix
type FixContext struct {
	Error  ingest.ValidationError
	Field  ingest.TargetField
	Record ingest.Record
	Now    time.Time
}

// FixResult is a proposed correction
type FixResult struct {
	CanFix               bool    `json:"canFix"`
	FixedValue           any     `json:"fixedValue,omitempty"`
	Confidence           float64 `json:"confidence"`
	Explanation          string  `json:"explanation"`
	RequiresConfirmation bool    `json:"requiresConfirmation"`
}

// AutoEligible reports whether the fix may be applied without confirmation
func (r FixResult) AutoEligible() bool {
	return r.CanFix && r.Confidence >= AutoApplyConfidence && !r.RequiresConfirmation
}

// Pattern recognises one shape of validation error and proposes a fix
type Pattern struct {
	Name   string
	Detect func(e ingest.ValidationError, f ingest.TargetField) bool
	Fix    func(c FixContext) FixResult
}

// DefaultPatterns returns the built-in recovery patterns
func DefaultPatterns() []Pattern {
	return []Pattern{
		requiredFieldPattern(),
		numberPattern(),
		booleanPattern(),
		skuPattern(),
		duplicatePattern(),
		integerPattern(),
		datePattern(),
		urlPattern(),
	}
}

func cannotFix(format string, args ...any) FixResult {
	return FixResult{CanFix: false, Explanation: fmt.Sprintf(format, args...)}
}

func ruleIs(rule string) func(ingest.ValidationError, ingest.TargetField) bool {
	return func(e ingest.ValidationError, _ ingest.TargetField) bool {
		return e.Rule == rule
	}
}

func requiredFieldPattern() Pattern {
	return Pattern{
		Name:   "required-field",
		Detect: ruleIs(ingest.RuleRequired),
		Fix: func(c FixContext) FixResult {
			for _, alt := range c.Field.Alternates {
				if key, ok := findKey(c.Record, alt); ok && !c.Record.IsBlank(key) {
					return FixResult{
						CanFix:      true,
						FixedValue:  c.Record.String(key),
						Confidence:  92,
						Explanation: fmt.Sprintf("Copied from %q", key),
					}
				}
			}
			if c.Field.DeriveFrom != "" && !c.Record.IsBlank(c.Field.DeriveFrom) {
				return FixResult{
					CanFix:      true,
					FixedValue:  slug.Make(c.Record.String(c.Field.DeriveFrom)),
					Confidence:  95,
					Explanation: fmt.Sprintf("Derived from %s", c.Field.DeriveFrom),
				}
			}
			if c.Field.Kind == ingest.KindSKU {
				if sku := synthesizeSKU(c.Record, c.Error.RecordIndex); sku != "" {
					return FixResult{
						CanFix:               true,
						FixedValue:           sku,
						Confidence:           70,
						Explanation:          "Generated from the product name",
						RequiresConfirmation: true,
					}
				}
			}
			return cannotFix("No value available for %s", c.Field.Name)
		},
	}
}

func numberPattern() Pattern {
	return Pattern{
		Name: "number-format",
		Detect: func(e ingest.ValidationError, f ingest.TargetField) bool {
			return e.Rule == ingest.RuleNumberFormat && f.Kind.IsNumeric()
		},
		Fix: func(c FixContext) FixResult {
			text := c.Record.String(c.Field.Name)
			if n, ok := cleanNumber(text); ok && !n.Value.IsNegative() {
				return FixResult{
					CanFix:      true,
					FixedValue:  numericValue(c.Field.Kind, n),
					Confidence:  95,
					Explanation: "Removed currency symbols and separators",
				}
			}
			if n, ok := firstNumber(text); ok && !n.Value.IsNegative() {
				return FixResult{
					CanFix:               true,
					FixedValue:           numericValue(c.Field.Kind, n),
					Confidence:           60,
					Explanation:          fmt.Sprintf("Took the first number in %q", text),
					RequiresConfirmation: true,
				}
			}
			return cannotFix("%q contains no number", text)
		},
	}
}

func numericValue(kind ingest.FieldKind, n parsedNumber) any {
	switch kind {
	case ingest.KindCurrency:
		return ingest.Cents(toCents(n))
	case ingest.KindInteger:
		return n.Value.Round(0).IntPart()
	default:
		return n.Value.InexactFloat64()
	}
}

func booleanPattern() Pattern {
	return Pattern{
		Name:   "boolean-vocabulary",
		Detect: ruleIs(ingest.RuleInvalidBoolean),
		Fix: func(c FixContext) FixResult {
			text := c.Record.String(c.Field.Name)
			if b, ok := ingest.ParseBool(text); ok {
				return FixResult{
					CanFix:      true,
					FixedValue:  b,
					Confidence:  95,
					Explanation: fmt.Sprintf("%q means %t", text, b),
				}
			}
			return cannotFix("%q is not a yes/no value", text)
		},
	}
}

func skuPattern() Pattern {
	return Pattern{
		Name:   "sku-cleanup",
		Detect: ruleIs(ingest.RuleInvalidSKU),
		Fix: func(c FixContext) FixResult {
			if cleaned := cleanSKU(c.Record.String(c.Field.Name)); len(cleaned) >= minSKULength {
				return FixResult{
					CanFix:      true,
					FixedValue:  cleaned,
					Confidence:  90,
					Explanation: "Removed characters that are not letters or digits",
				}
			}
			if sku := synthesizeSKU(c.Record, c.Error.RecordIndex); sku != "" {
				return FixResult{
					CanFix:               true,
					FixedValue:           sku,
					Confidence:           70,
					Explanation:          "Generated from the product name",
					RequiresConfirmation: true,
				}
			}
			return cannotFix("SKU %q cannot be repaired", c.Record.String(c.Field.Name))
		},
	}
}

func duplicatePattern() Pattern {
	return Pattern{
		Name:   "duplicate-disambiguator",
		Detect: ruleIs(ingest.RuleDuplicate),
		Fix: func(c FixContext) FixResult {
			value := c.Record.String(c.Field.Name)
			return FixResult{
				CanFix:               true,
				FixedValue:           fmt.Sprintf("%s-%s%d", value, c.Now.UTC().Format("20060102150405"), c.Error.RecordIndex),
				Confidence:           85,
				Explanation:          "Appended a timestamp to make the value unique",
				RequiresConfirmation: true,
			}
		},
	}
}

func integerPattern() Pattern {
	return Pattern{
		Name: "integer-round",
		Detect: func(e ingest.ValidationError, f ingest.TargetField) bool {
			return e.Rule == ingest.RuleTypeMismatch && f.Kind == ingest.KindInteger
		},
		Fix: func(c FixContext) FixResult {
			n, ok := parsePlainNumber(c.Record[c.Field.Name])
			if !ok {
				return cannotFix("%q is not a number", c.Record.String(c.Field.Name))
			}
			rounded := n.Value.Round(0).IntPart()
			return FixResult{
				CanFix:      true,
				FixedValue:  rounded,
				Confidence:  92,
				Explanation: fmt.Sprintf("Rounded %s to %d", n.Value.String(), rounded),
			}
		},
	}
}

func datePattern() Pattern {
	return Pattern{
		Name:   "date-normalize",
		Detect: ruleIs(ingest.RuleInvalidDate),
		Fix: func(c FixContext) FixResult {
			text := c.Record.String(c.Field.Name)
			parsed, ok := ingest.ParseDate(text)
			if !ok {
				return cannotFix("%q is not a recognised date", text)
			}
			iso := parsed.Time.Format("2006-01-02")
			if parsed.Ambiguous {
				return FixResult{
					CanFix:               true,
					FixedValue:           iso,
					Confidence:           75,
					Explanation:          fmt.Sprintf("Read %q as month/day; day and month may be swapped", text),
					RequiresConfirmation: true,
				}
			}
			return FixResult{
				CanFix:      true,
				FixedValue:  iso,
				Confidence:  90,
				Explanation: fmt.Sprintf("Converted %q to ISO 8601", text),
			}
		},
	}
}

func urlPattern() Pattern {
	return Pattern{
		Name:   "url-scheme",
		Detect: ruleIs(ingest.RuleInvalidURL),
		Fix: func(c FixContext) FixResult {
			text := c.Record.String(c.Field.Name)
			if c.Error.AutoFix == nil {
				return cannotFix("%q is not a URL", text)
			}
			return FixResult{
				CanFix:      true,
				FixedValue:  c.Error.AutoFix.NewValue,
				Confidence:  c.Error.AutoFix.Confidence,
				Explanation: "Added the https:// scheme",
			}
		},
	}
}

// cleanSKU keeps letters and digits and upper-cases them
func cleanSKU(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// synthesizeSKU builds a SKU from the record name, e.g. "BLUE-MUG-0007"
func synthesizeSKU(rec ingest.Record, index int) string {
	name := rec.String("name")
	if name == "" {
		name = rec.String("title")
	}
	if name == "" {
		return ""
	}
	words := strings.Split(strings.ToUpper(slug.Make(name)), "-")
	if len(words) > 3 {
		words = words[:3]
	}
	base := strings.Join(words, "-")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s-%04d", base, index+1)
}

// findKey finds a record key equal to name after normalization
func findKey(rec ingest.Record, name string) (string, bool) {
	if _, ok := rec[name]; ok {
		return name, true
	}
	want := ingest.NormalizeName(name)
	for k := range rec {
		if ingest.NormalizeName(k) == want {
			return k, true
		}
	}
	return "", false
}
