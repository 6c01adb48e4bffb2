package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// FileKind is the gross shape of an upload
type FileKind string

const (
	KindDelimited   FileKind = "csv"
	KindJSON        FileKind = "json"
	KindSpreadsheet FileKind = "spreadsheet"
)

// Encoding names reported in parse metadata
const (
	EncodingUTF8        = "UTF-8"
	EncodingUTF8BOM     = "UTF-8-BOM"
	EncodingUTF16LE     = "UTF-16LE"
	EncodingUTF16BE     = "UTF-16BE"
	EncodingLatin1      = "ISO-8859-1"
	EncodingWindows1252 = "windows-1252"
	EncodingBinary      = "binary"
)

// candidateDelimiters are tried in tie-break order
var candidateDelimiters = []rune{',', ';', '\t', '|', ':', '~', '#'}

const (
	sniffRecords = 20
	sniffBytes   = 64 * 1024
)

// Detection is the result of sniffing a raw upload
type Detection struct {
	Kind     FileKind
	Encoding string
	HasBOM   bool
	// Text is the upload decoded to UTF-8 with any BOM removed. Empty for spreadsheets.
	Text string
	// Delimiter is the most consistent candidate delimiter, 0 when none was found
	Delimiter rune
	// DelimiterConsistency is the share of sniffed records agreeing on the delimiter count
	DelimiterConsistency float64
	HasQuotes            bool
	MultilineQuoted      bool
	BackslashEscapes     bool
	LineCount            int
	// Sniffed is set when the kind was inferred from content rather than
	// the file extension
	Sniffed bool
}

// Detect sniffs byte-order marks, charset and file shape
func Detect(data []byte, fileName string) (*Detection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	if isSpreadsheet(data, fileName) {
		return &Detection{Kind: KindSpreadsheet, Encoding: EncodingBinary}, nil
	}

	text, enc, hasBOM, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	d := &Detection{
		Kind:     KindDelimited,
		Encoding: enc,
		HasBOM:   hasBOM,
		Text:     text,
	}
	if hasJSONExtension(fileName) {
		d.Kind = KindJSON
		return d, nil
	}
	if looksLikeJSON(text) {
		d.Kind = KindJSON
		d.Sniffed = true
	}

	d.LineCount = strings.Count(text, "\n") + 1
	d.Delimiter, d.DelimiterConsistency = DetectDelimiter(text)
	d.HasQuotes, d.MultilineQuoted, d.BackslashEscapes = scanQuoting(text)
	return d, nil
}

func isSpreadsheet(data []byte, fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return true
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func hasJSONExtension(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json", ".ndjson", ".jsonl":
		return true
	}
	return false
}

func looksLikeJSON(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	return strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")
}

// decodeText converts the upload to UTF-8 and names the source encoding
func decodeText(data []byte) (string, string, bool, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), EncodingUTF8BOM, true, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data, EncodingUTF16LE)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data, EncodingUTF16BE)
	case utf8.Valid(data):
		return string(data), EncodingUTF8, false, nil
	case hasC1Controls(data):
		// 0x80-0x9F are control codes in Latin-1 but punctuation in windows-1252
		return decodeWith(charmap.Windows1252, data, EncodingWindows1252)
	default:
		return decodeWith(charmap.ISO8859_1, data, EncodingLatin1)
	}
}

func decodeWith(enc encoding.Encoding, data []byte, name string) (string, string, bool, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	hasBOM := name == EncodingUTF16LE || name == EncodingUTF16BE
	return strings.TrimPrefix(string(out), "\uFEFF"), name, hasBOM, nil
}

func hasC1Controls(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return true
		}
	}
	return false
}

// DetectDelimiter picks the candidate whose per-record count is most
// consistent over the first records of text. Quoted sections are ignored.
func DetectDelimiter(text string) (rune, float64) {
	counts := countDelimiters(text)
	if len(counts) == 0 {
		return 0, 0
	}

	var (
		best          rune
		bestAgreement float64
		bestMode      int
	)
	for _, cand := range candidateDelimiters {
		mode, agreement := modeOf(counts[cand])
		if mode == 0 {
			continue
		}
		// Compare agreement at two-decimal precision so that a delimiter
		// splitting into more columns wins near-ties.
		a := float64(int(agreement*100+0.5)) / 100
		b := float64(int(bestAgreement*100+0.5)) / 100
		if best == 0 || a > b || (a == b && mode > bestMode) {
			best, bestAgreement, bestMode = cand, agreement, mode
		}
	}
	return best, bestAgreement
}

// countDelimiters returns, per candidate, the count of occurrences outside
// quotes in each of the first sniffRecords logical records
func countDelimiters(text string) map[rune][]int {
	if len(text) > sniffBytes {
		text = text[:sniffBytes]
	}
	counts := make(map[rune][]int, len(candidateDelimiters))
	current := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	records := 0
	nonBlank := false

	flush := func() {
		if nonBlank {
			for _, c := range candidateDelimiters {
				counts[c] = append(counts[c], current[c])
			}
			records++
		}
		for _, c := range candidateDelimiters {
			current[c] = 0
		}
		nonBlank = false
	}

	for _, r := range text {
		if records >= sniffRecords {
			break
		}
		switch {
		case r == '"':
			inQuotes = !inQuotes
			nonBlank = true
		case r == '\n' && !inQuotes:
			flush()
		case r == '\r' && !inQuotes:
		case inQuotes:
		default:
			if r != ' ' {
				nonBlank = true
			}
			if isCandidate(r) {
				current[r]++
			}
		}
	}
	if records < sniffRecords {
		flush()
	}
	if records == 0 {
		return nil
	}
	return counts
}

func isCandidate(r rune) bool {
	for _, c := range candidateDelimiters {
		if c == r {
			return true
		}
	}
	return false
}

// modeOf returns the most frequent value (the larger on ties) and the
// fraction of entries equal to it
func modeOf(values []int) (int, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	freq := make(map[int]int)
	for _, v := range values {
		freq[v]++
	}
	mode, hits := 0, 0
	for v, n := range freq {
		if n > hits || (n == hits && v > mode) {
			mode, hits = v, n
		}
	}
	return mode, float64(hits) / float64(len(values))
}

// scanQuoting reports whether text uses quotes, whether a quoted field spans
// lines, and whether quotes are escaped with a backslash
func scanQuoting(text string) (hasQuotes, multiline, backslash bool) {
	if len(text) > sniffBytes {
		text = text[:sniffBytes]
	}
	inQuotes := false
	var prev rune
	for _, r := range text {
		switch {
		case r == '"' && prev == '\\' && inQuotes:
			backslash = true
		case r == '"':
			hasQuotes = true
			inQuotes = !inQuotes
		case r == '\n' && inQuotes:
			multiline = true
		}
		prev = r
	}
	return hasQuotes, multiline, backslash
}
