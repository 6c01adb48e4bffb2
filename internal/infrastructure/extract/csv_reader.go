package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DelimitedReader reads delimited text into raw records
type DelimitedReader struct {
	delimiter  rune
	lazyQuotes bool
	maxErrors  int
}

// ReaderOption is a functional option for DelimitedReader configuration
type ReaderOption func(*DelimitedReader)

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) ReaderOption {
	return func(r *DelimitedReader) {
		if d != 0 {
			r.delimiter = d
		}
	}
}

// WithLazyQuotes enables lazy quote handling
func WithLazyQuotes(lazy bool) ReaderOption {
	return func(r *DelimitedReader) {
		r.lazyQuotes = lazy
	}
}

// WithMaxRecordErrors sets how many malformed records are skipped before giving up.
// Zero means the first malformed record aborts the read.
func WithMaxRecordErrors(n int) ReaderOption {
	return func(r *DelimitedReader) {
		r.maxErrors = n
	}
}

// NewDelimitedReader creates a reader. Defaults: comma, strict quotes.
// Fields are always trimmed.
func NewDelimitedReader(opts ...ReaderOption) *DelimitedReader {
	r := &DelimitedReader{delimiter: ','}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadAll parses text into records. Records that fail to parse are skipped
// and reported as issues until the error budget is spent.
func (r *DelimitedReader) ReadAll(text string) ([][]string, []Issue, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = r.delimiter
	reader.LazyQuotes = r.lazyQuotes
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	var (
		records [][]string
		issues  []Issue
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			line := 0
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			issues = append(issues, Issue{Code: IssueCodeParse, Line: line, Message: err.Error()})
			if len(issues) > r.maxErrors {
				return records, issues, fmt.Errorf("failed to read delimited text: %w", err)
			}
			continue
		}
		for i := range record {
			record[i] = trimSpaces(record[i])
		}
		if isBlankRecord(record) {
			continue
		}
		records = append(records, record)
	}
	return records, issues, nil
}

// splitManual is a forgiving quote-aware splitter used when the csv package
// rejects the input. Doubled quotes inside quoted fields become one quote.
func splitManual(text string, delimiter rune) [][]string {
	if delimiter == 0 {
		delimiter = ','
	}
	var (
		records  [][]string
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	runes := []rune(text)
	endField := func() {
		fields = append(fields, trimSpaces(field.String()))
		field.Reset()
	}
	endRecord := func() {
		endField()
		if !isBlankRecord(fields) {
			records = append(records, fields)
		}
		fields = nil
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			field.WriteRune('"')
			i++
		case c == '"' && inQuotes:
			inQuotes = false
		case c == '"' && strings.TrimSpace(field.String()) == "":
			field.Reset()
			inQuotes = true
		case c == delimiter && !inQuotes:
			endField()
		case c == '\r' && !inQuotes:
		case c == '\n' && !inQuotes:
			endRecord()
		default:
			field.WriteRune(c)
		}
	}
	if field.Len() > 0 || len(fields) > 0 {
		endRecord()
	}
	return records
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// trimSpaces trims whitespace from a string
func trimSpaces(s string) string {
	start := 0
	end := len(s)

	for start < end {
		r, size := utf8.DecodeRuneInString(s[start:])
		if !isWhitespace(r) {
			break
		}
		start += size
	}

	for end > start {
		r, size := utf8.DecodeLastRuneInString(s[:end])
		if !isWhitespace(r) {
			break
		}
		end -= size
	}

	return s[start:end]
}

// isWhitespace checks if a rune is whitespace
func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', ' ':
		return true
	}
	return false
}
