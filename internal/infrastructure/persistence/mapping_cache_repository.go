package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/persistence/models"
)

// GormMappingCache implements ingest.MappingCacheStore on the mapping_cache table
type GormMappingCache struct {
	db *gorm.DB
}

// NewGormMappingCache creates a new GormMappingCache
func NewGormMappingCache(db *gorm.DB) *GormMappingCache {
	return &GormMappingCache{db: db}
}

func cacheSource(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup loads every known pair with a single query
func (c *GormMappingCache) Lookup(ctx context.Context, sourceFields, targetFields []string) (map[ingest.MappingPair]float64, error) {
	out := make(map[ingest.MappingPair]float64)
	if len(sourceFields) == 0 || len(targetFields) == 0 {
		return out, nil
	}
	// several spellings can share one stored source
	bySource := make(map[string][]string, len(sourceFields))
	keys := make([]string, 0, len(sourceFields))
	for _, source := range sourceFields {
		key := cacheSource(source)
		if _, ok := bySource[key]; !ok {
			keys = append(keys, key)
		}
		bySource[key] = append(bySource[key], source)
	}

	var rows []models.MappingCacheModel
	err := c.db.WithContext(ctx).
		Where("source_field IN ? AND target_field IN ?", keys, targetFields).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load cached mappings: %w", err)
	}
	for _, row := range rows {
		for _, source := range bySource[row.SourceField] {
			out[ingest.MappingPair{SourceField: source, TargetField: row.TargetField}] = row.Confidence
		}
	}
	return out, nil
}

// Upsert inserts the pair or raises its confidence. A lower confidence never
// overwrites a stored one.
func (c *GormMappingCache) Upsert(ctx context.Context, m ingest.CachedMapping) error {
	if strings.TrimSpace(m.SourceField) == "" || m.TargetField == "" {
		return fmt.Errorf("cached mapping needs source and target")
	}
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	model := models.MappingCacheModel{
		SourceField: cacheSource(m.SourceField),
		TargetField: m.TargetField,
		Confidence:  m.Confidence,
		Strategy:    m.Strategy,
		UpdatedAt:   updated,
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_field"}, {Name: "target_field"}},
			DoUpdates: clause.AssignmentColumns([]string{"confidence", "strategy", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "excluded.confidence > mapping_cache.confidence"},
			}},
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("upsert cached mapping: %w", err)
	}
	return nil
}

// All returns every cached pair ordered by source
func (c *GormMappingCache) All(ctx context.Context) ([]ingest.CachedMapping, error) {
	var rows []models.MappingCacheModel
	if err := c.db.WithContext(ctx).Order("source_field, target_field").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ingest.CachedMapping, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ ingest.MappingCacheStore = (*GormMappingCache)(nil)
