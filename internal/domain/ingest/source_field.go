package ingest

// DataType is the inferred type of a source column
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
	DataTypeJSON    DataType = "json"
)

// SourceField describes one column of the uploaded file, derived from a
// sample of parsed rows. It is a value type and is not modified after
// profiling.
type SourceField struct {
	Name                 string   `json:"name"`
	DataType             DataType `json:"data_type"`
	SampleValues         []string `json:"sample_values"`
	NullPercentage       float64  `json:"null_percentage"`
	UniquenessPercentage float64  `json:"uniqueness_percentage"`
	Required             bool     `json:"required"`
}

// SourceFieldNames returns the names of the given fields in order
func SourceFieldNames(fields []SourceField) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
