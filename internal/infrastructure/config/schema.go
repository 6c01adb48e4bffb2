package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erp/ingest/internal/domain/ingest"
)

// schemaFile is the YAML layout of a schema definitions file:
//
//	entities:
//	  - entity_type: product
//	    fields:
//	      - name: sku
//	        kind: sku
//	        required: true
//	        unique: true
//	        synonyms: [item_code]
type schemaFile struct {
	Entities []schemaEntity `yaml:"entities"`
}

type schemaEntity struct {
	EntityType string        `yaml:"entity_type"`
	Fields     []schemaField `yaml:"fields"`
}

type schemaField struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Required   bool     `yaml:"required"`
	Unique     bool     `yaml:"unique"`
	Synonyms   []string `yaml:"synonyms"`
	Alternates []string `yaml:"alternates"`
	DeriveFrom string   `yaml:"derive_from"`
	MaxLength  int      `yaml:"max_length"`
}

// LoadSchemas reads target schemas from a YAML file. An empty path returns
// the built-in product schema.
func LoadSchemas(path string) ([]*ingest.TargetSchema, error) {
	if path == "" {
		return []*ingest.TargetSchema{ingest.DefaultProductSchema()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchemas(data)
}

// ParseSchemas decodes schema definitions. Unknown keys are rejected.
func ParseSchemas(data []byte) ([]*ingest.TargetSchema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file schemaFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode schema file: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("schema file defines no entities")
	}

	seen := make(map[string]bool)
	out := make([]*ingest.TargetSchema, 0, len(file.Entities))
	for _, e := range file.Entities {
		if seen[e.EntityType] {
			return nil, fmt.Errorf("entity %q defined twice", e.EntityType)
		}
		seen[e.EntityType] = true

		fields := make([]ingest.TargetField, 0, len(e.Fields))
		for _, f := range e.Fields {
			kind := ingest.FieldKind(f.Kind)
			if f.Kind == "" {
				kind = ingest.KindString
			}
			fields = append(fields, ingest.TargetField{
				Name:       f.Name,
				Kind:       kind,
				Required:   f.Required,
				Unique:     f.Unique,
				Synonyms:   f.Synonyms,
				Alternates: f.Alternates,
				DeriveFrom: f.DeriveFrom,
				MaxLength:  f.MaxLength,
			})
		}
		schema, err := ingest.NewTargetSchema(e.EntityType, fields...)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.EntityType, err)
		}
		out = append(out, schema)
	}
	return out, nil
}
