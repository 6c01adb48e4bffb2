package ingestapp

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/erp/ingest/internal/domain/ingest"
)

// Fix actions attached to validation findings
const (
	ActionCleanNumber  = "clean_number"
	ActionRound        = "round"
	ActionNormalize    = "normalize"
	ActionToString     = "to_string"
	ActionTruncate     = "truncate"
	ActionStripSKU     = "strip_invalid_characters"
	ActionISODate      = "iso_date"
	ActionExtractFirst = "extract_first_number"
)

var validSKU = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.]*$`)

// Validator checks mapped records against a target schema and normalizes
// the values it accepts
type Validator struct {
	schema *ingest.TargetSchema
}

// NewValidator creates a Validator for schema
func NewValidator(schema *ingest.TargetSchema) *Validator {
	return &Validator{schema: schema}
}

// Schema returns the target schema
func (v *Validator) Schema() *ingest.TargetSchema {
	return v.schema
}

// Validate checks every record. Report.Records holds normalized copies.
func (v *Validator) Validate(records []ingest.Record) *ingest.ValidationReport {
	indexed := make(map[int]ingest.Record, len(records))
	for i, r := range records {
		indexed[i] = r
	}
	normalized, errs := v.validate(indexed)

	report := &ingest.ValidationReport{
		Errors:  errs,
		Records: make([]ingest.Record, len(records)),
	}
	for i := range records {
		report.Records[i] = normalized[i]
	}
	invalid := report.InvalidIndexes()
	report.InvalidCount = len(invalid)
	report.ValidCount = len(records) - len(invalid)
	for _, e := range errs {
		if !e.IsError() {
			report.WarningCount++
		}
	}
	return report
}

// ValidateIndexed checks a subset of records keyed by their original index.
// Uniqueness is only checked within the subset.
func (v *Validator) ValidateIndexed(records map[int]ingest.Record) []ingest.ValidationError {
	_, errs := v.validate(records)
	return errs
}

func (v *Validator) validate(records map[int]ingest.Record) (map[int]ingest.Record, []ingest.ValidationError) {
	indexes := make([]int, 0, len(records))
	for i := range records {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	seen := make(map[string]map[string]int)
	for _, f := range v.schema.Fields {
		if f.Unique {
			seen[f.Name] = make(map[string]int)
		}
	}

	normalized := make(map[int]ingest.Record, len(records))
	var errs []ingest.ValidationError
	for _, idx := range indexes {
		rec := records[idx].Clone()
		for _, f := range v.schema.Fields {
			if e := v.checkField(idx, rec, f); e != nil {
				errs = append(errs, *e)
			}
			if f.Unique && !rec.IsBlank(f.Name) {
				key := strings.ToLower(rec.String(f.Name))
				if first, dup := seen[f.Name][key]; dup {
					errs = append(errs, ingest.ValidationError{
						RecordIndex: idx,
						Field:       f.Name,
						Value:       rec[f.Name],
						Rule:        ingest.RuleDuplicate,
						Severity:    ingest.SeverityError,
						Message:     fmt.Sprintf("%s %q already used by record %d", f.Name, rec.String(f.Name), first),
						Suggestion:  "Make the value unique",
					})
				} else {
					seen[f.Name][key] = idx
				}
			}
		}
		normalized[idx] = rec
	}
	return normalized, errs
}

// checkField validates one field and normalizes rec in place when the value is acceptable
func (v *Validator) checkField(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	if rec.IsBlank(f.Name) {
		if f.Required {
			return newFinding(idx, f.Name, value, ingest.RuleRequired, ingest.SeverityError,
				fmt.Sprintf("%s is required", f.Name), "Provide a value", nil)
		}
		if _, present := rec[f.Name]; present {
			rec[f.Name] = nil
		}
		return nil
	}

	switch f.Kind {
	case ingest.KindCurrency:
		return checkCurrency(idx, rec, f)
	case ingest.KindInteger:
		return checkInteger(idx, rec, f)
	case ingest.KindDecimal:
		return checkDecimal(idx, rec, f)
	case ingest.KindBoolean:
		return checkBoolean(idx, rec, f)
	case ingest.KindDate:
		return checkDate(idx, rec, f)
	case ingest.KindSKU:
		return checkSKU(idx, rec, f)
	case ingest.KindURL:
		return checkURL(idx, rec, f)
	default:
		return checkString(idx, rec, f)
	}
}

func newFinding(idx int, field string, value any, rule string, sev ingest.Severity, msg, suggestion string, fix *ingest.AutoFix) *ingest.ValidationError {
	return &ingest.ValidationError{
		RecordIndex: idx,
		Field:       field,
		Value:       value,
		Rule:        rule,
		Severity:    sev,
		Message:     msg,
		Suggestion:  suggestion,
		AutoFix:     fix,
	}
}

func checkCurrency(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	if cents, ok := value.(ingest.Cents); ok {
		if cents < 0 {
			return newFinding(idx, f.Name, value, ingest.RuleNegativeValue, ingest.SeverityError,
				fmt.Sprintf("%s cannot be negative", f.Name), "Enter a positive amount", nil)
		}
		return nil
	}
	n, ok := parsePlainNumber(value)
	if !ok {
		if cleaned, cok := cleanNumber(rec.String(f.Name)); cok && !cleaned.Value.IsNegative() {
			cents := toCents(cleaned)
			return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
				fmt.Sprintf("%s %q is not a plain number", f.Name, rec.String(f.Name)),
				fmt.Sprintf("Use %s", formatCents(cents)),
				&ingest.AutoFix{Action: ActionCleanNumber, NewValue: ingest.Cents(cents), Confidence: 95})
		}
		return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
			fmt.Sprintf("%s %q is not a number", f.Name, rec.String(f.Name)), "Enter an amount such as 12.50", nil)
	}
	if n.Value.IsNegative() {
		return newFinding(idx, f.Name, value, ingest.RuleNegativeValue, ingest.SeverityError,
			fmt.Sprintf("%s cannot be negative", f.Name), "Enter a positive amount", nil)
	}
	rec[f.Name] = ingest.Cents(toCents(n))
	return nil
}

func checkInteger(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	n, ok := parsePlainNumber(value)
	if !ok {
		cleaned, cok := cleanNumber(rec.String(f.Name))
		if !cok {
			return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
				fmt.Sprintf("%s %q is not a whole number", f.Name, rec.String(f.Name)), "Enter a whole number", nil)
		}
		n = cleaned
		rounded := n.Value.Round(0).IntPart()
		return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
			fmt.Sprintf("%s %q is not a plain number", f.Name, rec.String(f.Name)),
			fmt.Sprintf("Use %d", rounded),
			&ingest.AutoFix{Action: ActionCleanNumber, NewValue: rounded, Confidence: 92})
	}
	if n.Value.IsNegative() {
		return newFinding(idx, f.Name, value, ingest.RuleNegativeValue, ingest.SeverityError,
			fmt.Sprintf("%s cannot be negative", f.Name), "Enter zero or more", nil)
	}
	if !n.Value.Equal(n.Value.Truncate(0)) {
		rounded := n.Value.Round(0).IntPart()
		return newFinding(idx, f.Name, value, ingest.RuleTypeMismatch, ingest.SeverityError,
			fmt.Sprintf("%s must be a whole number, got %s", f.Name, n.Value.String()),
			fmt.Sprintf("Use %d", rounded),
			&ingest.AutoFix{Action: ActionRound, NewValue: rounded, Confidence: 92})
	}
	rec[f.Name] = n.Value.IntPart()
	return nil
}

func checkDecimal(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	n, ok := parsePlainNumber(value)
	if !ok {
		if cleaned, cok := cleanNumber(rec.String(f.Name)); cok {
			return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
				fmt.Sprintf("%s %q is not a plain number", f.Name, rec.String(f.Name)),
				fmt.Sprintf("Use %s", cleaned.Value.String()),
				&ingest.AutoFix{Action: ActionCleanNumber, NewValue: cleaned.Value.InexactFloat64(), Confidence: 95})
		}
		return newFinding(idx, f.Name, value, ingest.RuleNumberFormat, ingest.SeverityError,
			fmt.Sprintf("%s %q is not a number", f.Name, rec.String(f.Name)), "Enter a number", nil)
	}
	if n.Value.IsNegative() {
		return newFinding(idx, f.Name, value, ingest.RuleNegativeValue, ingest.SeverityError,
			fmt.Sprintf("%s cannot be negative", f.Name), "Enter zero or more", nil)
	}
	rec[f.Name] = n.Value.InexactFloat64()
	return nil
}

func checkBoolean(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	if b, ok := value.(bool); ok {
		rec[f.Name] = b
		return nil
	}
	text := strings.ToLower(rec.String(f.Name))
	switch text {
	case "true", "1":
		rec[f.Name] = true
		return nil
	case "false", "0":
		rec[f.Name] = false
		return nil
	}
	if b, ok := ingest.ParseBool(text); ok {
		return newFinding(idx, f.Name, value, ingest.RuleInvalidBoolean, ingest.SeverityError,
			fmt.Sprintf("%s %q is not true or false", f.Name, rec.String(f.Name)),
			fmt.Sprintf("Use %t", b),
			&ingest.AutoFix{Action: ActionNormalize, NewValue: b, Confidence: 95})
	}
	return newFinding(idx, f.Name, value, ingest.RuleInvalidBoolean, ingest.SeverityError,
		fmt.Sprintf("%s %q is not a recognised yes/no value", f.Name, rec.String(f.Name)), "Use true or false", nil)
}

func checkDate(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	text := rec.String(f.Name)
	parsed, ok := ingest.ParseDate(text)
	if !ok {
		return newFinding(idx, f.Name, value, ingest.RuleInvalidDate, ingest.SeverityError,
			fmt.Sprintf("%s %q is not a date", f.Name, text), "Use YYYY-MM-DD", nil)
	}
	iso := parsed.Time.Format("2006-01-02")
	if text == iso || text == parsed.Time.Format("2006-01-02T15:04:05Z07:00") {
		rec[f.Name] = iso
		return nil
	}
	var fix *ingest.AutoFix
	if !parsed.Ambiguous {
		fix = &ingest.AutoFix{Action: ActionISODate, NewValue: iso, Confidence: 90}
	}
	return newFinding(idx, f.Name, value, ingest.RuleInvalidDate, ingest.SeverityError,
		fmt.Sprintf("%s %q is not in YYYY-MM-DD form", f.Name, text), fmt.Sprintf("Use %s", iso), fix)
}

func checkSKU(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	text, _ := toText(value)
	text = strings.TrimSpace(text)
	if validSKU.MatchString(text) && (f.MaxLength == 0 || len(text) <= f.MaxLength) {
		rec[f.Name] = text
		return nil
	}
	var fix *ingest.AutoFix
	if cleaned := cleanSKU(text); len(cleaned) >= minSKULength {
		fix = &ingest.AutoFix{Action: ActionStripSKU, NewValue: cleaned, Confidence: 90}
	}
	return newFinding(idx, f.Name, value, ingest.RuleInvalidSKU, ingest.SeverityError,
		fmt.Sprintf("%s %q contains characters other than letters, digits, '-', '_' and '.'", f.Name, text),
		"Remove spaces and symbols", fix)
}

func checkURL(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	text := rec.String(f.Name)
	u, err := url.ParseRequestURI(text)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		rec[f.Name] = text
		return nil
	}
	var fix *ingest.AutoFix
	if !strings.Contains(text, "://") && strings.Contains(text, ".") && !strings.ContainsAny(text, " \t") {
		fix = &ingest.AutoFix{Action: ActionNormalize, NewValue: "https://" + strings.TrimPrefix(text, "//"), Confidence: 80}
	}
	return newFinding(idx, f.Name, value, ingest.RuleInvalidURL, ingest.SeverityError,
		fmt.Sprintf("%s %q is not an http(s) URL", f.Name, text), "Use a full https:// address", fix)
}

func checkString(idx int, rec ingest.Record, f ingest.TargetField) *ingest.ValidationError {
	value := rec[f.Name]
	text, coerced := toText(value)
	if !coerced {
		if _, isString := value.(string); !isString {
			text = rec.String(f.Name)
			coerced = true
		}
	}
	text = strings.TrimSpace(text)
	if f.MaxLength > 0 && utf8.RuneCountInString(text) > f.MaxLength {
		truncated := string([]rune(text)[:f.MaxLength])
		rec[f.Name] = truncated
		return newFinding(idx, f.Name, value, ingest.RuleMaxLength, ingest.SeverityWarning,
			fmt.Sprintf("%s is longer than %d characters and was truncated", f.Name, f.MaxLength), "",
			&ingest.AutoFix{Action: ActionTruncate, NewValue: truncated, Confidence: 80})
	}
	rec[f.Name] = text
	if coerced {
		return newFinding(idx, f.Name, value, ingest.RuleStringCoercion, ingest.SeverityWarning,
			fmt.Sprintf("%s was converted to text", f.Name), "",
			&ingest.AutoFix{Action: ActionToString, NewValue: text, Confidence: 100})
	}
	return nil
}
