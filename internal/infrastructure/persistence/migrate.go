package persistence

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/erp/ingest/internal/infrastructure/migration"
	"github.com/erp/ingest/internal/infrastructure/persistence/models"
)

// AllModels lists every table the ingest service owns
func AllModels() []any {
	return []any{
		&models.ImportSessionModel{},
		&models.MappingCacheModel{},
		&models.ProductModel{},
		&models.EntityRecordModel{},
	}
}

// AutoMigrate creates or updates the ingest tables from the GORM models
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Migrate brings the schema up to date. PostgreSQL runs the versioned SQL
// migrations; SQLite uses AutoMigrate.
func Migrate(d *Database, logger *zap.Logger) error {
	if d.driver == "sqlite" {
		return AutoMigrate(d.DB)
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	m, err := migration.New(sqlDB, logger)
	if err != nil {
		return err
	}
	// Close would also close sqlDB, which the caller still owns
	return m.Up()
}
