// Package models holds the GORM persistence models for import sessions,
// the mapping cache and ingested records. Models convert to and from the
// domain types in internal/domain/ingest.
package models
