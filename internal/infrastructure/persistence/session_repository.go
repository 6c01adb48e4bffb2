package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
	"github.com/erp/ingest/internal/infrastructure/persistence/models"
)

// GormSessionRepository implements ingest.SessionRepository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormSessionRepository) WithTx(tx *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: tx}
}

// Save inserts or fully replaces the session row
func (r *GormSessionRepository) Save(ctx context.Context, session *ingest.ImportSession) error {
	model := models.ImportSessionModelFromDomain(session)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID finds a session by ID
func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*ingest.ImportSession, error) {
	var model models.ImportSessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns sessions matching the filter, newest first unless a sort is given
func (r *GormSessionRepository) List(ctx context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportSessionModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.ImportSessionModel
	if err := query.Order(sessionOrder(filter)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ingest.ImportSession, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ ingest.SessionRepository = (*GormSessionRepository)(nil)
