package extract

import (
	"errors"
	"fmt"
	"strings"
)

// Extraction issue codes
const (
	IssueCodeEmptyFile        = "ERR_EXTRACT_EMPTY_FILE"
	IssueCodeFileTooLarge     = "ERR_EXTRACT_FILE_TOO_LARGE"
	IssueCodeEncoding         = "ERR_EXTRACT_ENCODING"
	IssueCodeParse            = "ERR_EXTRACT_PARSE"
	IssueCodeNoDataRows       = "ERR_EXTRACT_NO_DATA_ROWS"
	IssueCodeRaggedRows       = "ERR_EXTRACT_RAGGED_ROWS"
	IssueCodeDuplicateHeaders = "ERR_EXTRACT_DUPLICATE_HEADERS"
	IssueCodeUnsupported      = "ERR_EXTRACT_UNSUPPORTED"
)

// Common extraction errors
var (
	// ErrEmptyFile is returned when the upload has no content
	ErrEmptyFile = errors.New("file is empty")

	// ErrFileTooLarge is returned when the file exceeds maximum size
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrNoDataRows is returned when the file contains a header but no rows
	ErrNoDataRows = errors.New("file contains no data rows")

	// ErrUnsupportedJSON is returned for JSON that is not an object or array of objects
	ErrUnsupportedJSON = errors.New("JSON must be an object or an array of objects")

	// ErrNoSheets is returned for a workbook without worksheets
	ErrNoSheets = errors.New("workbook contains no worksheets")
)

// Issue is one diagnostic collected during extraction
type Issue struct {
	Code     string `json:"code"`
	Strategy string `json:"strategy,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

// String formats the issue for the metadata issue list
func (i Issue) String() string {
	var b strings.Builder
	if i.Strategy != "" {
		b.WriteString(i.Strategy)
		b.WriteString(": ")
	}
	if i.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", i.Line)
	}
	b.WriteString(i.Message)
	return b.String()
}

// IssueCollection collects issues with a maximum limit
type IssueCollection struct {
	issues   []Issue
	maxCount int
	total    int
	seen     map[string]bool
}

// NewIssueCollection creates a collection holding at most maxCount issues
func NewIssueCollection(maxCount int) *IssueCollection {
	if maxCount <= 0 {
		maxCount = 100
	}
	return &IssueCollection{
		issues:   make([]Issue, 0),
		maxCount: maxCount,
		seen:     make(map[string]bool),
	}
}

// Add records an issue. Identical messages are kept once.
func (c *IssueCollection) Add(issue Issue) {
	key := issue.String()
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.total++
	if len(c.issues) < c.maxCount {
		c.issues = append(c.issues, issue)
	}
}

// Merge adds every issue of other
func (c *IssueCollection) Merge(other *IssueCollection) {
	if other == nil {
		return
	}
	for _, issue := range other.issues {
		c.Add(issue)
	}
}

// Issues returns the collected issues
func (c *IssueCollection) Issues() []Issue {
	return c.issues
}

// Strings returns the issues formatted as text
func (c *IssueCollection) Strings() []string {
	out := make([]string, len(c.issues))
	for i, issue := range c.issues {
		out[i] = issue.String()
	}
	return out
}

// TotalCount returns the number of distinct issues added
func (c *IssueCollection) TotalCount() int {
	return c.total
}

// IsTruncated returns true if issues were dropped because of the limit
func (c *IssueCollection) IsTruncated() bool {
	return c.total > len(c.issues)
}
