package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const upHeader = "-- %s\n-- Created: %s\n\n"

// MigrationFile is a pair of up and down scripts sharing one version
type MigrationFile struct {
	Version  uint
	Name     string
	UpPath   string
	DownPath string
}

// CreateMigration writes an empty up/down pair into dir, numbered one past
// the highest version found there.
func CreateMigration(dir, name string) (*MigrationFile, error) {
	base := sanitizeName(name)
	if base == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}
	versions, err := Versions(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	stem := fmt.Sprintf("%06d_%s", next, base)
	mf := &MigrationFile{
		Version:  next,
		Name:     base,
		UpPath:   filepath.Join(dir, stem+".up.sql"),
		DownPath: filepath.Join(dir, stem+".down.sql"),
	}
	created := time.Now().Format(time.RFC3339)
	if err := os.WriteFile(mf.UpPath, fmt.Appendf(nil, upHeader, name, created), 0o644); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := os.WriteFile(mf.DownPath, fmt.Appendf(nil, upHeader, "Rollback: "+name, created), 0o644); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return mf, nil
}

// Versions lists the versions that have an up script, ascending
func Versions(fsys fs.FS) ([]uint, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var versions []uint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, uint(v))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// EmbeddedVersions lists the versions compiled into the binary
func EmbeddedVersions() ([]uint, error) {
	sub, err := fs.Sub(migrationFiles, Dir)
	if err != nil {
		return nil, err
	}
	return Versions(sub)
}

// sanitizeName lowercases name and joins words with single underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c == ' ' || c == '-' || c == '_':
			pendingSep = b.Len() > 0
			continue
		default:
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(c)
	}
	return b.String()
}
