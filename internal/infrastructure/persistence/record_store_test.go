package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/persistence/models"
)

func TestGormRecordStore_InsertProducts(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormRecordStore(db)
	ctx := ingest.ContextWithSession(context.Background(), "sess-1")

	results, err := store.InsertBatch(ctx, "product", []ingest.Record{
		{"sku": "MUG-001", "name": "Blue mug", "slug": "blue-mug", "price": ingest.Cents(1250), "quantity": int64(5), "is_active": true, "available_from": "2024-05-01"},
		{"sku": "MUG-002", "name": "Red mug", "price": "13.00", "cost": ingest.Cents(400), "is_active": false, "weight": 0.35},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NotEmpty(t, r.InsertedID)
	}

	var rows []models.ProductModel
	require.NoError(t, db.Order("sku").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1250), rows[0].PriceCents)
	assert.Equal(t, "blue-mug", rows[0].Slug)
	assert.Equal(t, "sess-1", rows[0].SessionID)
	require.NotNil(t, rows[0].AvailableFrom)
	assert.Equal(t, 2024, rows[0].AvailableFrom.Year())
	assert.Equal(t, int64(1300), rows[1].PriceCents)
	require.NotNil(t, rows[1].CostCents)
	assert.Equal(t, int64(400), *rows[1].CostCents)
	assert.False(t, rows[1].IsActive)
	assert.Nil(t, rows[1].CompareAtCents)
}

func TestGormRecordStore_BatchIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormRecordStore(db)
	ctx := context.Background()

	_, err := store.InsertBatch(ctx, "product", []ingest.Record{
		{"sku": "DUP-1", "name": "First", "price": ingest.Cents(100)},
		{"sku": "DUP-1", "name": "Second", "price": ingest.Cents(200)},
	})
	require.Error(t, err)

	_, err = store.InsertBatch(ctx, "product", []ingest.Record{
		{"sku": "OK-1", "name": "Fine", "price": ingest.Cents(100)},
		{"sku": "BAD-1", "name": "Broken", "price": "twelve"},
	})
	require.Error(t, err)

	n, err := store.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGormRecordStore_GenericEntity(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormRecordStore(db)
	ctx := ingest.ContextWithSession(context.Background(), "sess-2")

	results, err := store.InsertBatch(ctx, "supplier", []ingest.Record{
		{"code": "SUP-1", "name": "Acme"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	var row models.EntityRecordModel
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "supplier", row.EntityType)
	assert.Equal(t, "Acme", row.Payload["name"])

	n, err := store.Count(ctx, "supplier")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	empty, err := store.InsertBatch(ctx, "supplier", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
