package extract

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// extractSpreadsheet reads the first worksheet; its first non-empty row is the header
func (e *Extractor) extractSpreadsheet(data []byte, issues *IssueCollection) *ParseResult {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		issues.Add(Issue{Code: IssueCodeUnsupported, Strategy: "spreadsheet", Message: fmt.Sprintf("failed to open workbook: %v", err)})
		return nil
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(cerr))
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		issues.Add(Issue{Code: IssueCodeUnsupported, Strategy: "spreadsheet", Message: ErrNoSheets.Error()})
		return nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		issues.Add(Issue{Code: IssueCodeParse, Strategy: "spreadsheet", Message: err.Error()})
		return nil
	}
	nonBlank := make([][]string, 0, len(records))
	for _, rec := range records {
		if !isBlankRecord(rec) {
			nonBlank = append(nonBlank, rec)
		}
	}
	if len(nonBlank) < 2 {
		issues.Add(Issue{Code: IssueCodeNoDataRows, Strategy: "spreadsheet", Message: ErrNoDataRows.Error()})
		return nil
	}

	columns, rows, buildIssues := BuildRows(nonBlank, true)
	for _, is := range buildIssues {
		is.Strategy = "spreadsheet"
		issues.Add(is)
	}
	header := AnalyzeHeader(nonBlank)

	return &ParseResult{
		Success:      true,
		Rows:         rows,
		Columns:      columns,
		Confidence:   sheetConfidence,
		StrategyName: "spreadsheet",
		Metadata: Metadata{
			HasHeaders:   true,
			TotalRecords: len(rows),
			QualityScore: QualityScore(nonBlank, header, 0),
		},
	}
}
