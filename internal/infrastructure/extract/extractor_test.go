package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

func newTestExtractor(t *testing.T, opts ...Option) *Extractor {
	return NewExtractor(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func TestExtractor_StandardCSV(t *testing.T) {
	data := "sku,name,price\nA-1,Mug,12.50\nA-2,\"Cup, large\",3.00\nA-3,Plate,7\n"

	result := newTestExtractor(t).Extract([]byte(data), "products.csv")

	require.True(t, result.Success)
	assert.GreaterOrEqual(t, result.Confidence, 90.0)
	assert.Equal(t, "rfc4180", result.StrategyName)
	assert.Equal(t, 3, result.Metadata.TotalRecords)
	assert.True(t, result.Metadata.HasHeaders)
	assert.Equal(t, ",", result.Metadata.Delimiter)
	assert.Equal(t, EncodingUTF8, result.Metadata.Encoding)
	assert.Equal(t, []string{"sku", "name", "price"}, result.Columns)
	assert.Equal(t, "Cup, large", result.Rows[1]["name"])
}

func TestExtractor_LargerCSVKeepsRowCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku,name,price,quantity\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "SKU-%d,Item %d,%d.99,%d\n", i, i, i%50, i%7)
	}

	result := newTestExtractor(t).Extract([]byte(b.String()), "bulk.csv")

	require.True(t, result.Success)
	assert.GreaterOrEqual(t, result.Confidence, 90.0)
	assert.Equal(t, 250, result.Metadata.TotalRecords)
}

func TestExtractor_SemicolonDelimiter(t *testing.T) {
	data := "sku;name;price\nA1;Mug;12,50\nA2;Cup;3,00\nA3;Bowl;4,75\n"

	result := newTestExtractor(t).Extract([]byte(data), "export.csv")

	require.True(t, result.Success)
	assert.Equal(t, ";", result.Metadata.Delimiter)
	assert.Equal(t, "alternative-delimiter", result.StrategyName)
	assert.Equal(t, "12,50", result.Rows[0]["price"])
	assert.LessOrEqual(t, result.Confidence, 95.0)
}

func TestExtractor_TabDelimiter(t *testing.T) {
	data := "sku\tname\nA1\tMug\nA2\tCup\n"

	result := newTestExtractor(t).Extract([]byte(data), "export.tsv")

	require.True(t, result.Success)
	assert.Equal(t, "\t", result.Metadata.Delimiter)
	assert.Equal(t, "Cup", result.Rows[1]["name"])
}

func TestExtractor_Latin1(t *testing.T) {
	data := []byte("sku,name\nA1,Caf\xe9\nA2,Th\xe9\n")

	result := newTestExtractor(t).Extract(data, "legacy.csv")

	require.True(t, result.Success)
	assert.Equal(t, EncodingLatin1, result.Metadata.Encoding)
	assert.Equal(t, "Café", result.Rows[0]["name"])
}

func TestExtractor_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("sku,name\nA1,Mug\n")...)

	result := newTestExtractor(t).Extract(data, "bom.csv")

	require.True(t, result.Success)
	assert.Equal(t, EncodingUTF8BOM, result.Metadata.Encoding)
	assert.Equal(t, "A1", result.Rows[0]["sku"])
}

func TestExtractor_NoHeader(t *testing.T) {
	data := "A1,Mug,12.5\nB2,Cup,3\n"

	result := newTestExtractor(t).Extract([]byte(data), "raw.csv")

	require.True(t, result.Success)
	assert.False(t, result.Metadata.HasHeaders)
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, result.Columns)
	assert.Equal(t, 2, result.Metadata.TotalRecords)
	assert.Equal(t, "Mug", result.Rows[0]["column_2"])
}

func TestExtractor_MultilineQuoted(t *testing.T) {
	data := "sku,description\nA1,\"line one\nline two\"\nA2,plain\n"

	result := newTestExtractor(t).Extract([]byte(data), "multi.csv")

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Metadata.TotalRecords)
	assert.Equal(t, "line one\nline two", result.Rows[0]["description"])
}

func TestExtractor_BackslashEscapedQuotes(t *testing.T) {
	data := "sku,name\nA1,\"Say \\\"hi\\\"\"\nA2,Plain\n"

	result := newTestExtractor(t).Extract([]byte(data), "escaped.csv")

	require.True(t, result.Success)
	assert.Equal(t, "complex-quoted", result.StrategyName)
	assert.Equal(t, `Say "hi"`, result.Rows[0]["name"])
	assert.NotEmpty(t, result.Metadata.Issues, "the strict reader failure is reported")
}

func TestBuildRows_DuplicateHeadersAndRaggedRows(t *testing.T) {
	records := [][]string{
		{"sku", "name", "name", ""},
		{"A1", "Mug"},
		{"", "", ""},
		{"A2", "Cup", "Big cup", "x"},
	}

	columns, rows, issues := BuildRows(records, true)

	assert.Equal(t, []string{"sku", "name", "name_2", "column_4"}, columns)
	require.Len(t, rows, 2, "blank rows are skipped")
	assert.Equal(t, "", rows[0]["name_2"])
	assert.Equal(t, "Big cup", rows[1]["name_2"])
	assert.Len(t, issues, 2)
}

func TestAnalyzeHeader(t *testing.T) {
	assert.True(t, AnalyzeHeader([][]string{{"sku", "price"}, {"A1", "9.99"}}).Detected)
	assert.False(t, AnalyzeHeader([][]string{{"1", "2"}, {"3", "4"}}).Detected)
	assert.False(t, AnalyzeHeader([][]string{{"name", "name"}, {"a", "b"}}).Detected, "duplicate cells are not a header")
	assert.Equal(t, 0.5, AnalyzeHeader([][]string{{"1", "2"}}).Plausibility())
}

func TestSplitManual(t *testing.T) {
	records := splitManual("a;\"b;c\"\r\n\"say \"\"x\"\"\";d\n\n", ';')
	require.Len(t, records, 2)
	assert.Equal(t, []string{"a", "b;c"}, records[0])
	assert.Equal(t, []string{`say "x"`, "d"}, records[1])
}

func TestExtractor_Failures(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		result := newTestExtractor(t).Extract([]byte("  \n"), "empty.csv")
		assert.False(t, result.Success)
		assert.Equal(t, 0.0, result.Confidence)
		assert.NotEmpty(t, result.Metadata.Issues)
	})

	t.Run("file too large", func(t *testing.T) {
		result := newTestExtractor(t, WithMaxFileSize(8)).Extract([]byte("sku,name\nA1,Mug\n"), "big.csv")
		assert.False(t, result.Success)
		assert.Contains(t, result.Metadata.Issues[0], ErrFileTooLarge.Error())
	})

	t.Run("malformed JSON", func(t *testing.T) {
		result := newTestExtractor(t).Extract([]byte(`[{"sku": "A1",`), "broken.json")
		assert.False(t, result.Success)
		assert.Equal(t, 0.0, result.Confidence)
	})

	t.Run("JSON scalar array", func(t *testing.T) {
		result := newTestExtractor(t).Extract([]byte(`[1, 2, 3]`), "numbers.json")
		assert.False(t, result.Success)
	})
}

func TestExtractor_BracketedCSVFallsBackToDelimited(t *testing.T) {
	data := "[ref],name,price\n[A1],Mug,12.50\n[A2],Cup,3.00\n"

	result := newTestExtractor(t).Extract([]byte(data), "products.csv")
	require.True(t, result.Success, result.Metadata.Issues)
	assert.NotEqual(t, "json", result.StrategyName)
	assert.Equal(t, 2, result.Metadata.TotalRecords)
	assert.Equal(t, []string{"[ref]", "name", "price"}, result.Columns)
	assert.Equal(t, "[A1]", result.Rows[0]["[ref]"])

	// an explicit .json upload is not reinterpreted
	result = newTestExtractor(t).Extract([]byte(data), "products.json")
	assert.False(t, result.Success)
}

func TestExtractor_JSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"array", `[{"sku":"A1","price":12.5,"qty":3},{"sku":"A2","price":4,"qty":1}]`, 2},
		{"single object", `{"sku":"A1","price":12.5,"qty":3}`, 1},
		{"envelope", `{"products":[{"sku":"A1","price":12.5,"qty":3}]}`, 1},
		{"newline delimited", "{\"sku\":\"A1\",\"price\":12.5,\"qty\":3}\n{\"sku\":\"A2\",\"price\":1,\"qty\":2}\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newTestExtractor(t).Extract([]byte(tt.data), "products.json")

			require.True(t, result.Success)
			assert.Equal(t, "json", result.StrategyName)
			assert.Equal(t, 98.0, result.Confidence)
			assert.Equal(t, tt.want, result.Metadata.TotalRecords)
			assert.Equal(t, "A1", result.Rows[0]["sku"])
			assert.Equal(t, json.Number("12.5"), result.Rows[0]["price"])
			assert.Equal(t, int64(3), result.Rows[0]["qty"])
		})
	}
}

func TestExtractor_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"sku", "name", "price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"A1", "Mug", 12.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"A2", "Cup", 3}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result := newTestExtractor(t).Extract(buf.Bytes(), "products.xlsx")

	require.True(t, result.Success)
	assert.Equal(t, "spreadsheet", result.StrategyName)
	assert.Equal(t, 95.0, result.Confidence)
	assert.Equal(t, 2, result.Metadata.TotalRecords)
	assert.Equal(t, "Mug", result.Rows[0]["name"])
	assert.Equal(t, "12.5", result.Rows[0]["price"])
}
