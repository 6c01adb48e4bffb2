package ingest

import (
	"fmt"
	"strings"

	"github.com/erp/ingest/internal/domain/shared"
)

// FieldKind is the expected value shape of a target field
type FieldKind string

const (
	KindString   FieldKind = "string"
	KindText     FieldKind = "text"
	KindSKU      FieldKind = "sku"
	KindCurrency FieldKind = "currency"
	KindInteger  FieldKind = "integer"
	KindDecimal  FieldKind = "decimal"
	KindBoolean  FieldKind = "boolean"
	KindDate     FieldKind = "date"
	KindURL      FieldKind = "url"
)

// IsValid checks if the kind is known
func (k FieldKind) IsValid() bool {
	switch k {
	case KindString, KindText, KindSKU, KindCurrency, KindInteger,
		KindDecimal, KindBoolean, KindDate, KindURL:
		return true
	}
	return false
}

// IsNumeric reports whether values of this kind are numbers
func (k FieldKind) IsNumeric() bool {
	return k == KindCurrency || k == KindInteger || k == KindDecimal
}

// TargetField is one field of the target schema
type TargetField struct {
	Name     string    `yaml:"name" json:"name"`
	Kind     FieldKind `yaml:"kind" json:"kind"`
	Required bool      `yaml:"required" json:"required"`
	Unique   bool      `yaml:"unique" json:"unique"`
	// Synonyms are alternative column names matched exactly by name
	Synonyms []string `yaml:"synonyms" json:"synonyms,omitempty"`
	// Alternates are record keys that may hold this field's value when it is empty
	Alternates []string `yaml:"alternates" json:"alternates,omitempty"`
	// DeriveFrom names the field a missing value can be derived from
	DeriveFrom string `yaml:"derive_from" json:"derive_from,omitempty"`
	MaxLength  int    `yaml:"max_length" json:"max_length,omitempty"`
}

// TargetFieldBuilder helps build target fields fluently
type TargetFieldBuilder struct {
	field TargetField
}

// Field creates a new target field builder with string kind
func Field(name string) *TargetFieldBuilder {
	return &TargetFieldBuilder{field: TargetField{Name: name, Kind: KindString}}
}

// Required marks the field as required
func (b *TargetFieldBuilder) Required() *TargetFieldBuilder {
	b.field.Required = true
	return b
}

// Unique marks the field as unique across the file
func (b *TargetFieldBuilder) Unique() *TargetFieldBuilder {
	b.field.Unique = true
	return b
}

// Kind sets the field kind
func (b *TargetFieldBuilder) Kind(k FieldKind) *TargetFieldBuilder {
	b.field.Kind = k
	return b
}

// Text sets the field kind to long text
func (b *TargetFieldBuilder) Text() *TargetFieldBuilder { return b.Kind(KindText) }

// SKU sets the field kind to stock keeping unit
func (b *TargetFieldBuilder) SKU() *TargetFieldBuilder { return b.Kind(KindSKU) }

// Currency sets the field kind to a price stored in cents
func (b *TargetFieldBuilder) Currency() *TargetFieldBuilder { return b.Kind(KindCurrency) }

// Integer sets the field kind to integer
func (b *TargetFieldBuilder) Integer() *TargetFieldBuilder { return b.Kind(KindInteger) }

// Decimal sets the field kind to decimal
func (b *TargetFieldBuilder) Decimal() *TargetFieldBuilder { return b.Kind(KindDecimal) }

// Bool sets the field kind to boolean
func (b *TargetFieldBuilder) Bool() *TargetFieldBuilder { return b.Kind(KindBoolean) }

// Date sets the field kind to date
func (b *TargetFieldBuilder) Date() *TargetFieldBuilder { return b.Kind(KindDate) }

// URL sets the field kind to URL
func (b *TargetFieldBuilder) URL() *TargetFieldBuilder { return b.Kind(KindURL) }

// Synonyms adds exact-match alternative column names
func (b *TargetFieldBuilder) Synonyms(names ...string) *TargetFieldBuilder {
	b.field.Synonyms = append(b.field.Synonyms, names...)
	return b
}

// Alternates adds record keys that can fill an empty value
func (b *TargetFieldBuilder) Alternates(keys ...string) *TargetFieldBuilder {
	b.field.Alternates = append(b.field.Alternates, keys...)
	return b
}

// DeriveFrom sets the field used to derive a missing value
func (b *TargetFieldBuilder) DeriveFrom(field string) *TargetFieldBuilder {
	b.field.DeriveFrom = field
	return b
}

// MaxLength sets the maximum length
func (b *TargetFieldBuilder) MaxLength(n int) *TargetFieldBuilder {
	b.field.MaxLength = n
	return b
}

// Build returns the built target field
func (b *TargetFieldBuilder) Build() TargetField {
	return b.field
}

// TargetSchema is the ordered list of fields records are mapped onto
type TargetSchema struct {
	EntityType string        `yaml:"entity_type" json:"entity_type"`
	Fields     []TargetField `yaml:"fields" json:"fields"`
	index      map[string]int
}

// NewTargetSchema creates a schema and validates field definitions
func NewTargetSchema(entityType string, fields ...TargetField) (*TargetSchema, error) {
	s := &TargetSchema{EntityType: entityType, Fields: fields}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the schema and rebuilds its lookup index
func (s *TargetSchema) Validate() error {
	if s.EntityType == "" {
		return shared.NewDomainError("INVALID_SCHEMA", "Schema entity type cannot be empty")
	}
	if len(s.Fields) == 0 {
		return shared.NewDomainError("INVALID_SCHEMA", "Schema must declare at least one field")
	}
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return shared.NewDomainError("INVALID_SCHEMA", fmt.Sprintf("Field %d has no name", i+1))
		}
		if !f.Kind.IsValid() {
			return shared.NewDomainError("INVALID_SCHEMA", fmt.Sprintf("Field %s has unknown kind %q", f.Name, f.Kind))
		}
		if _, dup := s.index[f.Name]; dup {
			return shared.NewDomainError("INVALID_SCHEMA", fmt.Sprintf("Field %s is declared twice", f.Name))
		}
		s.index[f.Name] = i
	}
	return nil
}

// Field returns the target field with the given name
func (s *TargetSchema) Field(name string) (TargetField, bool) {
	if s.index == nil {
		_ = s.Validate()
	}
	i, ok := s.index[name]
	if !ok {
		return TargetField{}, false
	}
	return s.Fields[i], true
}

// Names returns the field names in schema order
func (s *TargetSchema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the names of required fields
func (s *TargetSchema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// NormalizeName lowercases a column name and collapses separators to "_"
func NormalizeName(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r > 127:
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// DefaultEntityType is the entity type used when none is named
const DefaultEntityType = "product"

// DefaultProductSchema returns the catalog product schema used when no
// schema file is configured
func DefaultProductSchema() *TargetSchema {
	s, err := NewTargetSchema(DefaultEntityType,
		Field("sku").SKU().Required().Unique().MaxLength(64).
			Synonyms("product_code", "item_code", "item_number", "article_number", "part_number", "code", "style_number").
			Build(),
		Field("name").Required().MaxLength(255).
			Synonyms("product_name", "item_name", "title", "product_title", "name_en").
			Alternates("title", "product_title", "product_name", "item_name", "label").
			Build(),
		Field("slug").MaxLength(255).
			Synonyms("handle", "url_key", "permalink").
			DeriveFrom("name").
			Build(),
		Field("description").Text().
			Synonyms("desc", "long_description", "body", "body_html", "details", "product_description").
			Build(),
		Field("price").Currency().Required().
			Synonyms("unit_price", "sale_price", "retail_price", "selling_price", "list_price", "variant_price", "msrp").
			Build(),
		Field("compare_at_price").Currency().
			Synonyms("compare_price", "original_price", "was_price", "regular_price").
			Build(),
		Field("cost").Currency().
			Synonyms("cost_price", "unit_cost", "purchase_price", "wholesale_price").
			Build(),
		Field("quantity").Integer().
			Synonyms("qty", "stock", "inventory", "stock_quantity", "on_hand", "inventory_quantity", "available").
			Build(),
		Field("weight").Decimal().
			Synonyms("weight_kg", "shipping_weight", "mass", "net_weight").
			Build(),
		Field("category").
			Synonyms("category_name", "product_type", "type", "department", "collection").
			Build(),
		Field("brand").
			Synonyms("vendor", "manufacturer", "make", "brand_name").
			Build(),
		Field("barcode").
			Synonyms("ean", "upc", "gtin", "isbn", "ean13").
			Build(),
		Field("is_active").Bool().
			Synonyms("active", "enabled", "published", "status", "visible", "is_published").
			Build(),
		Field("image_url").URL().
			Synonyms("image", "image_src", "img", "photo", "picture", "main_image").
			Build(),
		Field("tags").
			Synonyms("keywords", "labels").
			Build(),
		Field("available_from").Date().
			Synonyms("release_date", "launch_date", "available_date", "publish_date").
			Build(),
	)
	if err != nil {
		panic("default product schema is invalid: " + err.Error())
	}
	return s
}
