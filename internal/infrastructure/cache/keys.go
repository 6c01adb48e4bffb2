package cache

import (
	"fmt"
	"strings"

	"github.com/erp/ingest/internal/domain/ingest"
)

// normalizeSource folds header spelling so "Unit Price" and "unit price "
// share an entry.
func normalizeSource(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func checkMapping(m ingest.CachedMapping) error {
	if strings.TrimSpace(m.SourceField) == "" || m.TargetField == "" {
		return fmt.Errorf("cached mapping needs source and target: %q -> %q", m.SourceField, m.TargetField)
	}
	if m.Confidence < 0 || m.Confidence > 100 {
		return fmt.Errorf("cached mapping confidence out of range: %v", m.Confidence)
	}
	return nil
}
