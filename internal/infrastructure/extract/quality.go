package extract

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	headerScoreThreshold = 0.7
	maxHeaderCellRunes   = 64
	singleColumnPenalty  = 0.6
)

// HeaderAnalysis describes whether the first record is a header row
type HeaderAnalysis struct {
	Detected bool
	Score    float64
}

// Plausibility is the header contribution to the quality score
func (h HeaderAnalysis) Plausibility() float64 {
	if h.Detected {
		return h.Score
	}
	return 0.5
}

// AnalyzeHeader scores the first record as a header candidate
func AnalyzeHeader(records [][]string) HeaderAnalysis {
	if len(records) == 0 || len(records[0]) == 0 {
		return HeaderAnalysis{}
	}
	first := records[0]

	var nonEmpty, nonNumeric, short int
	seen := make(map[string]bool, len(first))
	unique := true
	for _, cell := range first {
		c := strings.TrimSpace(cell)
		if c == "" {
			continue
		}
		nonEmpty++
		if !isNumeric(c) {
			nonNumeric++
		}
		if utf8.RuneCountInString(c) <= maxHeaderCellRunes {
			short++
		}
		key := strings.ToLower(c)
		if seen[key] {
			unique = false
		}
		seen[key] = true
	}
	if nonEmpty == 0 {
		return HeaderAnalysis{}
	}

	nonEmptyRatio := float64(nonEmpty) / float64(len(first))
	nonNumericRatio := float64(nonNumeric) / float64(nonEmpty)
	shortRatio := float64(short) / float64(nonEmpty)
	uniqueScore := 0.0
	if unique {
		uniqueScore = 1
	}

	distinct := 1.0
	contrast := identifierRatio(first)
	if len(records) > 1 {
		distinct = distinctFromRows(first, records[1:])
		if c := typeContrast(first, records[1]); c > contrast {
			contrast = c
		}
	}

	score := 0.3*nonNumericRatio + 0.2*uniqueScore + 0.15*shortRatio + 0.2*distinct + 0.15*contrast
	detected := score >= headerScoreThreshold && nonNumericRatio >= 0.8 && unique && nonEmptyRatio >= 0.5
	return HeaderAnalysis{Detected: detected, Score: score}
}

// distinctFromRows is the share of header cells that never appear in the same column below
func distinctFromRows(header []string, rows [][]string) float64 {
	if len(rows) > sniffRecords {
		rows = rows[:sniffRecords]
	}
	distinct := 0
	for col, h := range header {
		h = strings.TrimSpace(h)
		found := false
		for _, row := range rows {
			if col < len(row) && strings.EqualFold(strings.TrimSpace(row[col]), h) {
				found = true
				break
			}
		}
		if !found {
			distinct++
		}
	}
	return float64(distinct) / float64(len(header))
}

// typeContrast is the share of columns where the header is text and the row value is numeric
func typeContrast(header, row []string) float64 {
	hits := 0
	for col, h := range header {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if !isNumeric(strings.TrimSpace(h)) && v != "" && looksNumeric(v) {
			hits++
		}
	}
	return float64(hits) / float64(len(header))
}

// identifierRatio is the share of cells shaped like column identifiers
func identifierRatio(cells []string) float64 {
	if len(cells) == 0 {
		return 0
	}
	hits := 0
	for _, c := range cells {
		if isIdentifierLike(strings.TrimSpace(c)) {
			hits++
		}
	}
	return float64(hits) / float64(len(cells))
}

func isIdentifierLike(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > 40 {
		return false
	}
	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// looksNumeric accepts formatted numbers such as "$1,234.50" or "12 kg"
func looksNumeric(s string) bool {
	if isNumeric(s) {
		return true
	}
	digits, letters := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	return digits > 0 && digits >= letters
}

// QualityScore rates how cleanly records were parsed, 0-100
func QualityScore(records [][]string, header HeaderAnalysis, detected rune) float64 {
	if len(records) == 0 {
		return 0
	}
	counts := make([]int, len(records))
	totalCells, nonEmpty, clean := 0, 0, 0
	for i, rec := range records {
		counts[i] = len(rec)
		for _, cell := range rec {
			totalCells++
			if strings.TrimSpace(cell) != "" {
				nonEmpty++
			}
			if !hasArtifacts(cell) {
				clean++
			}
		}
	}
	mode, consistency := modeOf(counts)
	nonEmptyRatio, cleanRatio := 0.0, 0.0
	if totalCells > 0 {
		nonEmptyRatio = float64(nonEmpty) / float64(totalCells)
		cleanRatio = float64(clean) / float64(totalCells)
	}

	q := 100 * (0.4*consistency + 0.2*header.Plausibility() + 0.2*nonEmptyRatio + 0.2*cleanRatio)
	if mode == 1 && detected != 0 {
		q *= singleColumnPenalty
	}
	return q
}

// hasArtifacts flags cells that still carry quoting or escape debris
func hasArtifacts(cell string) bool {
	if strings.Contains(cell, `\"`) || strings.ContainsRune(cell, utf8.RuneError) {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(cell), `"`)
}

// BuildRows turns raw records into keyed rows. Without a header, columns are
// named column_1..column_N. Duplicate header names get a numeric suffix and
// short records are padded with empty strings.
func BuildRows(records [][]string, hasHeader bool) ([]string, []map[string]any, []Issue) {
	if len(records) == 0 {
		return nil, nil, nil
	}
	var issues []Issue

	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}

	var columns []string
	data := records
	if hasHeader {
		columns = make([]string, 0, width)
		used := make(map[string]int, width)
		for i := 0; i < width; i++ {
			name := ""
			if i < len(records[0]) {
				name = strings.TrimSpace(records[0][i])
			}
			if name == "" {
				name = fmt.Sprintf("column_%d", i+1)
			}
			if n := used[name]; n > 0 {
				used[name] = n + 1
				issues = append(issues, Issue{Code: IssueCodeDuplicateHeaders, Message: fmt.Sprintf("duplicate header %q renamed", name)})
				name = fmt.Sprintf("%s_%d", name, n+1)
			}
			used[name]++
			columns = append(columns, name)
		}
		data = records[1:]
	} else {
		columns = make([]string, width)
		for i := range columns {
			columns[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	rows := make([]map[string]any, 0, len(data))
	ragged := 0
	for _, rec := range data {
		if isBlankRecord(rec) {
			continue
		}
		if len(rec) != len(columns) {
			ragged++
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	if ragged > 0 {
		issues = append(issues, Issue{Code: IssueCodeRaggedRows, Message: fmt.Sprintf("%d rows have a different column count than the header", ragged)})
	}
	return columns, rows, issues
}
