package mapping

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/erp/ingest/internal/domain/ingest"
)

// DefaultSampleSize is how many rows are profiled per column
const DefaultSampleSize = 100

const maxSampleValues = 5

// ProfileFields derives a SourceField for every column from a sample of rows.
// When columns is empty the union of row keys is used, sorted by name.
func ProfileFields(rows []map[string]any, columns []string, sampleSize int) []ingest.SourceField {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if len(rows) > sampleSize {
		rows = rows[:sampleSize]
	}
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}

	fields := make([]ingest.SourceField, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, profileColumn(col, rows))
	}
	return fields
}

func columnsOf(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func profileColumn(name string, rows []map[string]any) ingest.SourceField {
	var (
		values  []any
		texts   []string
		nulls   int
		samples []string
	)
	distinct := make(map[string]bool)
	for _, row := range rows {
		v := row[name]
		s := ingest.ToText(v)
		if s == "" {
			nulls++
			continue
		}
		values = append(values, v)
		texts = append(texts, s)
		if !distinct[s] {
			distinct[s] = true
			if len(samples) < maxSampleValues {
				samples = append(samples, s)
			}
		}
	}

	f := ingest.SourceField{
		Name:         name,
		DataType:     inferType(values, texts),
		SampleValues: samples,
	}
	if len(rows) > 0 {
		f.NullPercentage = 100 * float64(nulls) / float64(len(rows))
	}
	if len(texts) > 0 {
		f.UniquenessPercentage = 100 * float64(len(distinct)) / float64(len(texts))
	}
	f.Required = len(rows) > 0 && nulls == 0
	if f.SampleValues == nil {
		f.SampleValues = []string{}
	}
	return f
}

// inferType checks boolean, number, date, json, then falls back to string
func inferType(values []any, texts []string) ingest.DataType {
	if len(texts) == 0 {
		return ingest.DataTypeString
	}
	switch {
	case all(values, texts, isBoolValue):
		return ingest.DataTypeBoolean
	case all(values, texts, isNumberValue):
		return ingest.DataTypeNumber
	case all(values, texts, isDateValue):
		return ingest.DataTypeDate
	case all(values, texts, isJSONValue):
		return ingest.DataTypeJSON
	}
	return ingest.DataTypeString
}

func all(values []any, texts []string, pred func(any, string) bool) bool {
	for i := range texts {
		if !pred(values[i], texts[i]) {
			return false
		}
	}
	return true
}

func isBoolValue(v any, s string) bool {
	if _, ok := v.(bool); ok {
		return true
	}
	// 0/1 columns are more often counts than flags
	if s == "0" || s == "1" {
		return false
	}
	_, ok := ingest.ParseBool(s)
	return ok
}

func isNumberValue(v any, s string) bool {
	switch v.(type) {
	case int, int64, float64, json.Number:
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isDateValue(_ any, s string) bool {
	_, ok := ingest.ParseDate(s)
	return ok
}

func isJSONValue(_ any, s string) bool {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return json.Valid([]byte(s))
}
