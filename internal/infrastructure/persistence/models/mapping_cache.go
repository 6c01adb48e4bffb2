package models

import (
	"time"

	"github.com/erp/ingest/internal/domain/ingest"
)

// MappingCacheModel stores one accepted (source, target) pair
type MappingCacheModel struct {
	SourceField string    `gorm:"type:varchar(255);primaryKey"`
	TargetField string    `gorm:"type:varchar(255);primaryKey"`
	Confidence  float64   `gorm:"not null"`
	Strategy    string    `gorm:"type:varchar(32);not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MappingCacheModel) TableName() string {
	return "mapping_cache"
}

// ToDomain converts the model to a CachedMapping
func (m *MappingCacheModel) ToDomain() ingest.CachedMapping {
	return ingest.CachedMapping{
		SourceField: m.SourceField,
		TargetField: m.TargetField,
		Confidence:  m.Confidence,
		Strategy:    m.Strategy,
		UpdatedAt:   m.UpdatedAt,
	}
}
