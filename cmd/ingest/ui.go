package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/extract"
)

var (
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	failure = lipgloss.Color("#FF3333")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Foreground(failure).Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
)

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("▸ "+strings.ToUpper(title)))
}

func keyValue(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %s %v\n", mutedStyle.Render(fmt.Sprintf("%-14s", key+":")), value)
}

func printParse(w io.Writer, parse *extract.ParseResult) {
	if parse == nil {
		return
	}
	section(w, "file")
	keyValue(w, "Strategy", parse.StrategyName)
	if parse.Metadata.Delimiter != "" {
		keyValue(w, "Delimiter", fmt.Sprintf("%q", parse.Metadata.Delimiter))
	}
	keyValue(w, "Encoding", parse.Metadata.Encoding)
	keyValue(w, "Rows", parse.Metadata.TotalRecords)
	keyValue(w, "Columns", strings.Join(parse.Columns, ", "))
	keyValue(w, "Quality", fmt.Sprintf("%.0f", parse.Metadata.QualityScore))
	for _, issue := range parse.Metadata.Issues {
		fmt.Fprintln(w, "  "+warningStyle.Render("! "+issue))
	}
	if parse.Metadata.IssuesTruncated {
		fmt.Fprintln(w, "  "+mutedStyle.Render(fmt.Sprintf("… %d issues in total", parse.Metadata.IssueCount)))
	}
}

func printMapping(w io.Writer, result *ingest.MappingResult) {
	if result == nil {
		return
	}
	section(w, "mapping")
	for _, m := range result.Mappings {
		fmt.Fprintf(w, "  %-24s → %-16s %s\n", m.SourceField, m.TargetField,
			mutedStyle.Render(fmt.Sprintf("%3.0f%% %s", m.Confidence, m.Strategy)))
	}
	for _, m := range result.LowConfidence {
		fmt.Fprintf(w, "  %-24s ? %-16s %s\n", m.SourceField, m.TargetField,
			warningStyle.Render(fmt.Sprintf("%3.0f%% below floor", m.Confidence)))
	}
	for _, f := range result.Unmapped {
		fmt.Fprintf(w, "  %-24s %s\n", f, mutedStyle.Render("unmapped"))
	}
	if len(result.Degraded) > 0 {
		fmt.Fprintln(w, "  "+warningStyle.Render("degraded: "+strings.Join(result.Degraded, ", ")))
	}
}

func printValidation(w io.Writer, report *ingest.ValidationReport, maxErrors int) {
	if report == nil {
		return
	}
	section(w, "validation")
	keyValue(w, "Valid", successStyle.Render(fmt.Sprint(report.ValidCount)))
	if report.InvalidCount > 0 {
		keyValue(w, "Invalid", errorStyle.Render(fmt.Sprint(report.InvalidCount)))
	} else {
		keyValue(w, "Invalid", 0)
	}
	keyValue(w, "Warnings", report.WarningCount)
	for i, e := range report.Errors {
		if i == maxErrors {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  … %d more", len(report.Errors)-maxErrors)))
			break
		}
		style := warningStyle
		if e.Severity == ingest.SeverityError {
			style = errorStyle
		}
		fmt.Fprintf(w, "  %s row %d %s: %s\n", style.Render(string(e.Severity)), e.RecordIndex+1, e.Field, e.Message)
	}
}

func printRecovery(w io.Writer, analysis *ingestapp.RecoveryAnalysis, applied *ingestapp.ApplyResult) {
	section(w, "repair")
	keyValue(w, "Auto-fixable", analysis.AutoFixable)
	keyValue(w, "To confirm", analysis.NeedsConfirmation)
	keyValue(w, "Manual", analysis.ManualRequired)
	if applied != nil {
		keyValue(w, "Applied", successStyle.Render(fmt.Sprint(applied.AppliedFixes)))
		keyValue(w, "Remaining", len(applied.RemainingErrors))
	}
}

// renderSummary formats the final session counters in a box
func renderSummary(s *ingest.ImportSession, elapsed time.Duration) string {
	status := successStyle.Render(string(s.Status))
	switch s.Status {
	case ingest.StatusCompletedWithErrors:
		status = warningStyle.Render(string(s.Status))
	case ingest.StatusFailed:
		status = errorStyle.Render(string(s.Status))
	}
	lines := []string{
		titleStyle.Render("Import ") + status,
		fmt.Sprintf("%s %s", mutedStyle.Render("Session  "), s.ID),
		fmt.Sprintf("%s %d", mutedStyle.Render("Imported "), s.SuccessfulRecords),
		fmt.Sprintf("%s %d", mutedStyle.Render("Failed   "), s.FailedRecords),
		fmt.Sprintf("%s %d", mutedStyle.Render("Skipped  "), s.SkippedRecords),
		fmt.Sprintf("%s %s", mutedStyle.Render("Elapsed  "), elapsed.Round(time.Millisecond)),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// barSink drives a progress bar from progress events. The bar is created
// on the first event that carries a record total.
type barSink struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
	max int
}

func newBarSink(out io.Writer) *barSink {
	return &barSink{out: out}
}

func newProgressBar(out io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Publish implements ingest.ProgressSink
func (s *barSink) Publish(ev ingest.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := ev.Progress; p != nil && p.TotalRecords > 0 {
		if s.bar == nil {
			s.bar = newProgressBar(s.out, p.TotalRecords)
			s.max = p.TotalRecords
		} else if p.TotalRecords != s.max {
			s.max = p.TotalRecords
			s.bar.ChangeMax(s.max)
		}
		_ = s.bar.Set(p.ProcessedRecords)
	}
	if ev.IsFinal() && s.bar != nil {
		_ = s.bar.Finish()
	}
}

// Current returns the value shown by the bar
func (s *barSink) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return 0
	}
	return s.bar.State().CurrentNum
}
