package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/ingest/internal/domain/ingest"
)

func TestProfileFields(t *testing.T) {
	rows := []map[string]any{
		{"sku": "A1", "price": "12.50", "active": "yes", "launched": "2024-01-02", "meta": `{"a":1}`, "qty": int64(3), "note": ""},
		{"sku": "A2", "price": "3", "active": "N", "launched": "2024-02-03", "meta": `[1,2]`, "qty": int64(0), "note": "fragile"},
		{"sku": "A2", "price": "7.25", "active": "true", "launched": "2024-03-04", "meta": `{}`, "qty": int64(1), "note": ""},
		{"sku": "A4", "price": "1", "active": "false", "launched": "2024-04-05", "meta": `{"b":2}`, "qty": int64(1)},
	}

	fields := ProfileFields(rows, nil, 0)
	byName := make(map[string]ingest.SourceField)
	for _, f := range fields {
		byName[f.Name] = f
	}
	require.Len(t, fields, 7)
	assert.Equal(t, "active", fields[0].Name, "columns are sorted when not given")

	assert.Equal(t, ingest.DataTypeString, byName["sku"].DataType)
	assert.Equal(t, 75.0, byName["sku"].UniquenessPercentage)
	assert.True(t, byName["sku"].Required)
	assert.Equal(t, []string{"A1", "A2", "A4"}, byName["sku"].SampleValues)

	assert.Equal(t, ingest.DataTypeNumber, byName["price"].DataType)
	assert.Equal(t, ingest.DataTypeBoolean, byName["active"].DataType)
	assert.Equal(t, ingest.DataTypeDate, byName["launched"].DataType)
	assert.Equal(t, ingest.DataTypeJSON, byName["meta"].DataType)
	assert.Equal(t, ingest.DataTypeNumber, byName["qty"].DataType, "0/1 values are not treated as flags")

	assert.Equal(t, 75.0, byName["note"].NullPercentage)
	assert.False(t, byName["note"].Required)
}

func TestProfileFields_SampleSize(t *testing.T) {
	rows := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		v := "x"
		if i >= 5 {
			v = ""
		}
		rows = append(rows, map[string]any{"c": v})
	}

	fields := ProfileFields(rows, []string{"c"}, 5)
	require.Len(t, fields, 1)
	assert.Equal(t, 0.0, fields[0].NullPercentage)
}
