package persistence

import (
	"strings"

	"github.com/erp/ingest/internal/domain/ingest"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// SessionSortFields contains allowed sort fields for import sessions
var SessionSortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"updated_at":         true,
	"status":             true,
	"entity_type":        true,
	"total_records":      true,
	"successful_records": true,
	"failed_records":     true,
	"completed_at":       true,
}

// sessionOrder builds the ORDER BY clause of a session listing from whitelisted input
func sessionOrder(filter ingest.SessionFilter) string {
	field := ValidateSortField(filter.SortBy, SessionSortFields, "created_at")
	return field + " " + ValidateSortOrder(filter.SortOrder)
}
