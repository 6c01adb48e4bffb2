package ingestapp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/ingest/internal/domain/ingest"
)

func productValidator() *Validator {
	return NewValidator(ingest.DefaultProductSchema())
}

func validProduct() ingest.Record {
	return ingest.Record{
		"sku":            "MUG-001",
		"name":           "Blue mug",
		"price":          "12.50",
		"quantity":       "5",
		"is_active":      "true",
		"image_url":      "https://cdn.example.com/mug.png",
		"available_from": "2024-03-05",
	}
}

func findingFor(t *testing.T, report *ingest.ValidationReport, index int, field string) ingest.ValidationError {
	t.Helper()
	for _, e := range report.ErrorsFor(index) {
		if e.Field == field {
			return e
		}
	}
	require.Failf(t, "no finding", "record %d field %s", index, field)
	return ingest.ValidationError{}
}

func TestValidator_NormalizesValidRecord(t *testing.T) {
	report := productValidator().Validate([]ingest.Record{validProduct()})

	assert.Equal(t, 1, report.ValidCount)
	assert.Equal(t, 0, report.InvalidCount)
	assert.Empty(t, report.Errors)

	rec := report.Records[0]
	assert.Equal(t, ingest.Cents(1250), rec["price"])
	assert.Equal(t, int64(5), rec["quantity"])
	assert.Equal(t, true, rec["is_active"])
	assert.Equal(t, "2024-03-05", rec["available_from"])
}

func TestValidator_DoesNotMutateInput(t *testing.T) {
	in := validProduct()
	productValidator().Validate([]ingest.Record{in})
	assert.Equal(t, "12.50", in["price"])
}

func TestValidator_RevalidationIsIdempotent(t *testing.T) {
	v := productValidator()
	rec := validProduct()
	rec["price"] = "15"
	first := v.Validate([]ingest.Record{rec})
	require.Equal(t, ingest.Cents(1500), first.Records[0]["price"])

	second := v.Validate(first.Records)
	assert.Empty(t, second.Errors)
	assert.Equal(t, ingest.Cents(1500), second.Records[0]["price"])
}

func TestValidator_Currency(t *testing.T) {
	tests := []struct {
		name  string
		value any
		cents ingest.Cents
	}{
		{"decimal text", "12.50", 1250},
		{"small whole number is major units", "15", 1500},
		{"large whole number is cents", "1999", 1999},
		{"float", 3.5, 350},
		{"int", 42, 4200},
		{"large decimal text", "1500.00", 150000},
		{"json number keeps written fraction", json.Number("1500.00"), 150000},
		{"json fractional number", json.Number("12.5"), 1250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validProduct()
			rec["price"] = tt.value
			report := productValidator().Validate([]ingest.Record{rec})
			require.Empty(t, report.Errors)
			assert.Equal(t, tt.cents, report.Records[0]["price"])
		})
	}
}

func TestValidator_CurrencyWithSymbols(t *testing.T) {
	rec := validProduct()
	rec["price"] = "$1,234.50"
	report := productValidator().Validate([]ingest.Record{rec})

	require.Equal(t, 1, report.InvalidCount)
	e := findingFor(t, report, 0, "price")
	assert.Equal(t, ingest.RuleNumberFormat, e.Rule)
	require.NotNil(t, e.AutoFix)
	assert.Equal(t, ingest.Cents(123450), e.AutoFix.NewValue)
	assert.Equal(t, float64(95), e.AutoFix.Confidence)
}

func TestValidator_NegativePrice(t *testing.T) {
	rec := validProduct()
	rec["price"] = "-3.00"
	report := productValidator().Validate([]ingest.Record{rec})
	assert.Equal(t, ingest.RuleNegativeValue, findingFor(t, report, 0, "price").Rule)
}

func TestValidator_FieldRules(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   any
		rule    string
		fixed   any
		hasFix  bool
		warning bool
	}{
		{"fractional quantity", "quantity", "2.5", ingest.RuleTypeMismatch, int64(3), true, false},
		{"grouped quantity", "quantity", "1,200", ingest.RuleNumberFormat, int64(1200), true, false},
		{"text quantity", "quantity", "lots", ingest.RuleNumberFormat, nil, false, false},
		{"yes is boolean", "is_active", "yes", ingest.RuleInvalidBoolean, true, true, false},
		{"unknown boolean", "is_active", "maybe", ingest.RuleInvalidBoolean, nil, false, false},
		{"dotted date", "available_from", "05.03.2024", ingest.RuleInvalidDate, "2024-03-05", true, false},
		{"ambiguous date", "available_from", "03/05/2024", ingest.RuleInvalidDate, nil, false, false},
		{"garbage date", "available_from", "soon", ingest.RuleInvalidDate, nil, false, false},
		{"sku with spaces", "sku", "mug 001!", ingest.RuleInvalidSKU, "MUG001", true, false},
		{"url without scheme", "image_url", "cdn.example.com/a.png", ingest.RuleInvalidURL, "https://cdn.example.com/a.png", true, false},
		{"ftp url", "image_url", "ftp://cdn.example.com/a.png", ingest.RuleInvalidURL, nil, false, false},
		{"numeric name", "name", 1234, ingest.RuleStringCoercion, "1234", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validProduct()
			rec[tt.field] = tt.value
			report := productValidator().Validate([]ingest.Record{rec})

			e := findingFor(t, report, 0, tt.field)
			assert.Equal(t, tt.rule, e.Rule)
			assert.Equal(t, !tt.warning, e.IsError())
			if tt.hasFix {
				require.NotNil(t, e.AutoFix)
				assert.Equal(t, tt.fixed, e.AutoFix.NewValue)
			} else {
				assert.Nil(t, e.AutoFix)
			}
			if tt.warning {
				assert.Equal(t, 1, report.ValidCount)
				assert.Equal(t, 1, report.WarningCount)
			} else {
				assert.Equal(t, 1, report.InvalidCount)
			}
		})
	}
}

func TestValidator_BooleanLiteralsAccepted(t *testing.T) {
	for _, v := range []any{"TRUE", "0", "1", false} {
		rec := validProduct()
		rec["is_active"] = v
		report := productValidator().Validate([]ingest.Record{rec})
		assert.Empty(t, report.Errors, "value %v", v)
	}
}

func TestValidator_RequiredAndBlank(t *testing.T) {
	rec := validProduct()
	rec["name"] = "   "
	rec["weight"] = ""
	report := productValidator().Validate([]ingest.Record{rec})

	e := findingFor(t, report, 0, "name")
	assert.Equal(t, ingest.RuleRequired, e.Rule)
	assert.Len(t, report.Errors, 1)
	assert.Nil(t, report.Records[0]["weight"])
}

func TestValidator_TruncatesLongName(t *testing.T) {
	rec := validProduct()
	rec["name"] = strings.Repeat("x", 300)
	report := productValidator().Validate([]ingest.Record{rec})

	e := findingFor(t, report, 0, "name")
	assert.Equal(t, ingest.RuleMaxLength, e.Rule)
	assert.False(t, e.IsError())
	assert.Equal(t, 1, report.ValidCount)
	assert.Len(t, report.Records[0]["name"], 255)
}

func TestValidator_DuplicateSKU(t *testing.T) {
	a, b, c := validProduct(), validProduct(), validProduct()
	b["sku"] = "CUP-002"
	c["sku"] = "mug-001"
	report := productValidator().Validate([]ingest.Record{a, b, c})

	assert.Equal(t, 2, report.ValidCount)
	assert.Equal(t, 1, report.InvalidCount)
	e := findingFor(t, report, 2, "sku")
	assert.Equal(t, ingest.RuleDuplicate, e.Rule)
	assert.Contains(t, e.Message, "record 0")
	assert.Equal(t, map[int]bool{2: true}, report.InvalidIndexes())
}

func TestValidator_ValidateIndexedKeepsIndexes(t *testing.T) {
	rec := validProduct()
	rec["quantity"] = "abc"
	errs := productValidator().ValidateIndexed(map[int]ingest.Record{41: rec})
	require.Len(t, errs, 1)
	assert.Equal(t, 41, errs[0].RecordIndex)
}

func TestCleanNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$1,234.50", "1234.5", true},
		{"1.234,50 EUR", "1234.5", true},
		{"12,5", "12.5", true},
		{"1,200", "1200", true},
		{"€ 3", "3", true},
		{"(4.00)", "-4", true},
		{"1.234.567", "1234567", true},
		{"12 kg", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := cleanNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, n.Value.String())
			}
		})
	}
}

func TestToCents(t *testing.T) {
	n, _ := parsePlainNumber("9.99")
	assert.Equal(t, int64(999), toCents(n))
	n, _ = parsePlainNumber("999")
	assert.Equal(t, int64(99900), toCents(n))
	n, _ = parsePlainNumber("1000")
	assert.Equal(t, int64(1000), toCents(n))
	assert.Equal(t, "12.50", formatCents(1250))
}
