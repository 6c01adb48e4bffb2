package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

func (e *Extractor) extractJSON(det *Detection, issues *IssueCollection) *ParseResult {
	objects, err := decodeJSONObjects(det.Text)
	if err != nil {
		issues.Add(Issue{Code: IssueCodeUnsupported, Strategy: "json", Message: err.Error()})
		return nil
	}
	if len(objects) == 0 {
		issues.Add(Issue{Code: IssueCodeNoDataRows, Strategy: "json", Message: ErrNoDataRows.Error()})
		return nil
	}

	seen := make(map[string]bool)
	var columns []string
	rows := make([]map[string]any, 0, len(objects))
	for _, obj := range objects {
		row := make(map[string]any, len(obj))
		for k, v := range obj {
			row[k] = normalizeJSONValue(v)
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		rows = append(rows, row)
	}
	sort.Strings(columns)

	return &ParseResult{
		Success:      true,
		Rows:         rows,
		Columns:      columns,
		Confidence:   jsonConfidence,
		StrategyName: "json",
		Metadata: Metadata{
			HasHeaders:   true,
			TotalRecords: len(rows),
			QualityScore: 100,
		},
	}
}

// decodeJSONObjects accepts an array of objects, a single object, an object
// whose only member is an array of objects, or newline-delimited objects
func decodeJSONObjects(text string) ([]map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var first any
	if err := dec.Decode(&first); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Further values after the first mean newline-delimited input
	var rest []any
	for {
		var v any
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		rest = append(rest, v)
	}
	if len(rest) > 0 {
		return asObjects(append([]any{first}, rest...))
	}

	switch v := first.(type) {
	case []any:
		return asObjects(v)
	case map[string]any:
		if len(v) == 1 {
			for _, inner := range v {
				if arr, ok := inner.([]any); ok {
					if objs, err := asObjects(arr); err == nil {
						return objs, nil
					}
				}
			}
		}
		return []map[string]any{v}, nil
	default:
		return nil, ErrUnsupportedJSON
	}
}

func asObjects(values []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, ErrUnsupportedJSON
		}
		out = append(out, obj)
	}
	return out, nil
}

// normalizeJSONValue turns integral json.Number values into int64. Other
// numbers stay json.Number so "1500.00" keeps its written fraction. Nested
// values are re-encoded as compact JSON text.
func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		return val
	case map[string]any, []any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	default:
		return val
	}
}
