package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/persistence/models"
)

// GormRecordStore writes validated records. Each batch runs in one
// transaction, so a failing record rolls back the whole batch and the
// orchestrator can retry it safely.
type GormRecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRecordStore creates a new GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db, now: time.Now}
}

// InsertBatch implements ingest.RecordStore
func (s *GormRecordStore) InsertBatch(ctx context.Context, entityType string, records []ingest.Record) ([]ingest.InsertResult, error) {
	if len(records) == 0 {
		return []ingest.InsertResult{}, nil
	}
	sessionID := ingest.SessionFromContext(ctx)
	now := s.now()
	results := make([]ingest.InsertResult, len(records))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entityType == "product" {
			rows := make([]models.ProductModel, len(records))
			for i, rec := range records {
				row, err := productRow(rec)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				row.ID = uuid.New()
				row.SessionID = sessionID
				row.CreatedAt = now
				rows[i] = row
				results[i] = ingest.InsertResult{Success: true, InsertedID: row.ID.String()}
			}
			return tx.Create(&rows).Error
		}

		rows := make([]models.EntityRecordModel, len(records))
		for i, rec := range records {
			rows[i] = models.EntityRecordModel{
				ID:         uuid.New(),
				SessionID:  sessionID,
				EntityType: entityType,
				Payload:    map[string]any(rec),
				CreatedAt:  now,
			}
			results[i] = ingest.InsertResult{Success: true, InsertedID: rows[i].ID.String()}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s batch: %w", entityType, err)
	}
	return results, nil
}

func productRow(rec ingest.Record) (models.ProductModel, error) {
	row := models.ProductModel{
		SKU:         rec.String("sku"),
		Name:        rec.String("name"),
		Slug:        rec.String("slug"),
		Description: rec.String("description"),
		Category:    rec.String("category"),
		Brand:       rec.String("brand"),
		Barcode:     rec.String("barcode"),
		ImageURL:    rec.String("image_url"),
		Tags:        rec.String("tags"),
		IsActive:    true,
	}
	if row.SKU == "" || row.Name == "" {
		return row, fmt.Errorf("sku and name are required")
	}

	price, ok, err := centsValue(rec["price"])
	if err != nil || !ok {
		return row, fmt.Errorf("price: %v", orMissing(err))
	}
	row.PriceCents = price
	if row.CompareAtCents, err = optionalCents(rec["compare_at_price"]); err != nil {
		return row, fmt.Errorf("compare_at_price: %w", err)
	}
	if row.CostCents, err = optionalCents(rec["cost"]); err != nil {
		return row, fmt.Errorf("cost: %w", err)
	}
	if q, ok, err := intValue(rec["quantity"]); err != nil {
		return row, fmt.Errorf("quantity: %w", err)
	} else if ok {
		row.Quantity = q
	}
	if w, ok, err := floatValue(rec["weight"]); err != nil {
		return row, fmt.Errorf("weight: %w", err)
	} else if ok {
		row.Weight = w
	}
	if b, ok := rec["is_active"].(bool); ok {
		row.IsActive = b
	}
	if d := rec.String("available_from"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return row, fmt.Errorf("available_from: %w", err)
		}
		row.AvailableFrom = &t
	}
	return row, nil
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("missing")
}

func centsValue(v any) (int64, bool, error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case ingest.Cents:
		return int64(val), true, nil
	}
	// uncoerced values are read as major units
	d, ok, err := decimalValue(v)
	if err != nil || !ok {
		return 0, ok, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true, nil
}

func optionalCents(v any) (*int64, error) {
	c, ok, err := centsValue(v)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func intValue(v any) (int64, bool, error) {
	switch val := v.(type) {
	case int64:
		return val, true, nil
	case int:
		return int64(val), true, nil
	}
	d, ok, err := decimalValue(v)
	if err != nil || !ok {
		return 0, ok, err
	}
	return d.Round(0).IntPart(), true, nil
}

func floatValue(v any) (float64, bool, error) {
	if f, ok := v.(float64); ok {
		return f, true, nil
	}
	d, ok, err := decimalValue(v)
	if err != nil || !ok {
		return 0, ok, err
	}
	return d.InexactFloat64(), true, nil
}

func decimalValue(v any) (decimal.Decimal, bool, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case int:
		return decimal.NewFromInt(int64(val)), true, nil
	case int64:
		return decimal.NewFromInt(val), true, nil
	case float64:
		return decimal.NewFromFloat(val), true, nil
	case decimal.Decimal:
		return val, true, nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("not a number: %q", val)
		}
		return d, true, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("not a number: %q", s)
		}
		return d, true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unsupported value type %T", v)
	}
}

// Count returns the rows stored for entityType
func (s *GormRecordStore) Count(ctx context.Context, entityType string) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx)
	if entityType == "product" {
		q = q.Model(&models.ProductModel{})
	} else {
		q = q.Model(&models.EntityRecordModel{}).Where("entity_type = ?", entityType)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

var _ ingest.RecordStore = (*GormRecordStore)(nil)
