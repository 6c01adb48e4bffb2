package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductModel is a catalog product written by the record store.
// Currency columns hold integer cents.
type ProductModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID      string    `gorm:"type:varchar(36);not null;index"`
	SKU            string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name           string    `gorm:"type:varchar(255);not null"`
	Slug           string    `gorm:"type:varchar(255);index"`
	Description    string    `gorm:"type:text"`
	PriceCents     int64     `gorm:"not null"`
	CompareAtCents *int64
	CostCents      *int64
	Quantity       int64   `gorm:"not null;default:0"`
	Weight         float64 `gorm:"not null;default:0"`
	Category       string  `gorm:"type:varchar(255)"`
	Brand          string  `gorm:"type:varchar(255)"`
	Barcode        string  `gorm:"type:varchar(64)"`
	IsActive       bool    `gorm:"not null;default:true"`
	ImageURL       string  `gorm:"type:text"`
	Tags           string  `gorm:"type:text"`
	AvailableFrom  *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// EntityRecordModel stores records of entity types without a dedicated table
type EntityRecordModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SessionID  string         `gorm:"type:varchar(36);not null;index"`
	EntityType string         `gorm:"type:varchar(64);not null;index"`
	Payload    map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt  time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EntityRecordModel) TableName() string {
	return "entity_records"
}
