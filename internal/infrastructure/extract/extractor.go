package extract

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxFileSize is the default upload ceiling (50MB)
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

const (
	delimiterMatchBonus = 10.0
	slowParseAfter      = 2 * time.Second
	maxTimePenalty      = 10.0
	jsonConfidence      = 98.0
	sheetConfidence     = 95.0
	maxIssues           = 100
)

// Metadata describes how a file was parsed
type Metadata struct {
	Delimiter    string   `json:"delimiter,omitempty"`
	HasHeaders   bool     `json:"hasHeaders"`
	TotalRecords int      `json:"totalRecords"`
	Encoding     string   `json:"encoding"`
	ParseTimeMs  int64    `json:"parseTimeMs"`
	QualityScore float64  `json:"qualityScore"`
	Issues       []string `json:"issues"`
	// IssueCount includes issues dropped from Issues once the limit is hit
	IssueCount      int  `json:"issueCount"`
	IssuesTruncated bool `json:"issuesTruncated,omitempty"`
}

// ParseResult is the outcome of extracting one upload
type ParseResult struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"-"`
	Columns      []string         `json:"columns"`
	Confidence   float64          `json:"confidence"`
	StrategyName string           `json:"strategyName"`
	Metadata     Metadata         `json:"metadata"`
}

// Extractor turns raw uploads into rows, picking the best parse strategy
type Extractor struct {
	maxFileSize int64
	logger      *zap.Logger
	clock       func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithMaxFileSize sets the upload ceiling in bytes
func WithMaxFileSize(size int64) Option {
	return func(e *Extractor) {
		if size > 0 {
			e.maxFileSize = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxFileSize: DefaultMaxFileSize,
		logger:      zap.NewNop(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidate is one strategy's successful attempt
type candidate struct {
	kind       StrategyKind
	columns    []string
	rows       []map[string]any
	header     HeaderAnalysis
	quality    float64
	confidence float64
	delimiter  rune
}

// Extract parses data. It never returns nil; failures are reported through
// Success=false with the collected issues.
func (e *Extractor) Extract(data []byte, fileName string) *ParseResult {
	start := e.clock()
	issues := NewIssueCollection(maxIssues)

	if int64(len(data)) > e.maxFileSize {
		issues.Add(Issue{Code: IssueCodeFileTooLarge, Message: fmt.Sprintf("%s: %d bytes, limit %d", ErrFileTooLarge, len(data), e.maxFileSize)})
		return e.failure(issues, "", start)
	}

	det, err := Detect(data, fileName)
	if err != nil {
		code := IssueCodeEncoding
		if errors.Is(err, ErrEmptyFile) {
			code = IssueCodeEmptyFile
		}
		issues.Add(Issue{Code: code, Message: err.Error()})
		return e.failure(issues, "", start)
	}

	var result *ParseResult
	switch det.Kind {
	case KindJSON:
		result = e.extractJSONOrDelimited(det, fileName, issues)
	case KindSpreadsheet:
		result = e.extractSpreadsheet(data, issues)
	default:
		result = e.extractDelimited(det, issues)
	}
	if result == nil {
		return e.failure(issues, det.Encoding, start)
	}

	result.Metadata.Encoding = det.Encoding
	result.Metadata.ParseTimeMs = e.clock().Sub(start).Milliseconds()
	result.Metadata.Issues = issues.Strings()
	result.Metadata.IssueCount = issues.TotalCount()
	result.Metadata.IssuesTruncated = issues.IsTruncated()
	e.logger.Debug("File extracted",
		zap.String("file", fileName),
		zap.String("strategy", result.StrategyName),
		zap.Float64("confidence", result.Confidence),
		zap.Int("records", result.Metadata.TotalRecords),
	)
	return result
}

// extractJSONOrDelimited parses JSON. Text that only looked like JSON, such
// as a CSV whose first cell starts with a bracket, is parsed as delimited
// text when decoding fails.
func (e *Extractor) extractJSONOrDelimited(det *Detection, fileName string, issues *IssueCollection) *ParseResult {
	if !det.Sniffed {
		return e.extractJSON(det, issues)
	}
	jsonIssues := NewIssueCollection(maxIssues)
	if result := e.extractJSON(det, jsonIssues); result != nil {
		issues.Merge(jsonIssues)
		return result
	}
	e.logger.Debug("Content is not JSON, parsing as delimited text", zap.String("file", fileName))
	det.Kind = KindDelimited
	result := e.extractDelimited(det, issues)
	if result == nil {
		issues.Merge(jsonIssues)
	}
	return result
}

func (e *Extractor) extractDelimited(det *Detection, issues *IssueCollection) *ParseResult {
	var best *candidate
	for _, kind := range AllStrategies {
		if !kind.CanHandle(det) {
			continue
		}
		c, ok := e.runStrategy(kind, det, issues)
		if !ok {
			continue
		}
		// Strictly greater keeps the earlier strategy on ties
		if best == nil || c.confidence > best.confidence {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return &ParseResult{
		Success:      true,
		Rows:         best.rows,
		Columns:      best.columns,
		Confidence:   best.confidence,
		StrategyName: best.kind.String(),
		Metadata: Metadata{
			Delimiter:    string(best.delimiter),
			HasHeaders:   best.header.Detected,
			TotalRecords: len(best.rows),
			QualityScore: best.quality,
		},
	}
}

func (e *Extractor) runStrategy(kind StrategyKind, det *Detection, issues *IssueCollection) (*candidate, bool) {
	started := e.clock()
	records, parseIssues, err := kind.Execute(det)
	for _, is := range parseIssues {
		is.Strategy = kind.String()
		issues.Add(is)
	}
	if err != nil {
		issues.Add(Issue{Code: IssueCodeParse, Strategy: kind.String(), Message: err.Error()})
		return nil, false
	}
	if len(records) == 0 {
		issues.Add(Issue{Code: IssueCodeNoDataRows, Strategy: kind.String(), Message: ErrNoDataRows.Error()})
		return nil, false
	}

	header := AnalyzeHeader(records)
	columns, rows, buildIssues := BuildRows(records, header.Detected)
	for _, is := range buildIssues {
		is.Strategy = kind.String()
		issues.Add(is)
	}
	if len(rows) == 0 {
		issues.Add(Issue{Code: IssueCodeNoDataRows, Strategy: kind.String(), Message: ErrNoDataRows.Error()})
		return nil, false
	}

	quality := QualityScore(records, header, det.Delimiter)
	delim := kind.delimiterFor(det)
	confidence := 0.4*kind.BaseConfidence() + 0.5*quality
	if det.Delimiter != 0 && delim == det.Delimiter {
		confidence += delimiterMatchBonus
	}
	confidence -= timePenalty(e.clock().Sub(started))

	e.logger.Debug("Parse strategy evaluated",
		zap.String("strategy", kind.String()),
		zap.Float64("quality", quality),
		zap.Float64("confidence", kind.Clamp(confidence)),
	)
	return &candidate{
		kind:       kind,
		columns:    columns,
		rows:       rows,
		header:     header,
		quality:    quality,
		confidence: kind.Clamp(confidence),
		delimiter:  delim,
	}, true
}

func timePenalty(elapsed time.Duration) float64 {
	if elapsed <= slowParseAfter {
		return 0
	}
	p := (elapsed - slowParseAfter).Seconds()
	if p > maxTimePenalty {
		return maxTimePenalty
	}
	return p
}

func (e *Extractor) failure(issues *IssueCollection, encoding string, start time.Time) *ParseResult {
	e.logger.Warn("File could not be extracted", zap.Strings("issues", issues.Strings()))
	return &ParseResult{
		Success:    false,
		Confidence: 0,
		Metadata: Metadata{
			Encoding:    encoding,
			ParseTimeMs: e.clock().Sub(start).Milliseconds(),
			Issues:          issues.Strings(),
			IssueCount:      issues.TotalCount(),
			IssuesTruncated: issues.IsTruncated(),
		},
	}
}

// MaxFileSize returns the configured upload ceiling
func (e *Extractor) MaxFileSize() int64 {
	return e.maxFileSize
}
