package ingest

import "fmt"

// Severity of a validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Validation rule names
const (
	RuleRequired       = "required"
	RuleNumberFormat   = "number_format"
	RuleNegativeValue  = "negative_value"
	RuleTypeMismatch   = "type_mismatch"
	RuleInvalidBoolean = "invalid_boolean"
	RuleInvalidDate    = "invalid_date"
	RuleInvalidSKU     = "invalid_sku"
	RuleInvalidURL     = "invalid_url"
	RuleDuplicate      = "duplicate"
	RuleMaxLength      = "max_length"
	RuleStringCoercion = "string_coercion"
)

// AutoFix is a machine-proposed correction of one field value
type AutoFix struct {
	Action     string  `json:"action"`
	NewValue   any     `json:"new_value"`
	Confidence float64 `json:"confidence"`
}

// ValidationError is one finding on one field of one record
type ValidationError struct {
	RecordIndex int      `json:"record_index"`
	Field       string   `json:"field"`
	Value       any      `json:"value"`
	Rule        string   `json:"rule"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Suggestion  string   `json:"suggestion,omitempty"`
	AutoFix     *AutoFix `json:"auto_fix,omitempty"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("record %d, field %s: %s", e.RecordIndex, e.Field, e.Message)
}

// IsError reports whether the finding makes its record invalid
func (e ValidationError) IsError() bool {
	return e.Severity == SeverityError
}

// ValidationReport is the result of one validation pass
type ValidationReport struct {
	ValidCount   int               `json:"valid_count"`
	InvalidCount int               `json:"invalid_count"`
	WarningCount int               `json:"warning_count"`
	Errors       []ValidationError `json:"errors"`
	// Records holds normalized copies of the input, index-aligned
	Records []Record `json:"-"`
}

// InvalidIndexes returns the indexes of records with at least one error
func (r *ValidationReport) InvalidIndexes() map[int]bool {
	out := make(map[int]bool)
	for _, e := range r.Errors {
		if e.IsError() {
			out[e.RecordIndex] = true
		}
	}
	return out
}

// ErrorsFor returns the findings of one record
func (r *ValidationReport) ErrorsFor(index int) []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.RecordIndex == index {
			out = append(out, e)
		}
	}
	return out
}
