package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/ingest/internal/infrastructure/config"
	"github.com/erp/ingest/internal/infrastructure/persistence"
)

const catalogCSV = "SKU,Product Name,Unit Price,Qty,Active\n" +
	"MUG-001,Blue mug,12.50,5,true\n" +
	"MUG-002,Red mug,$13.00,3,yes\n" +
	"CUP-003,Cup,4.25,10,false\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func productCount(t *testing.T, path string) int64 {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	n, err := persistence.NewGormRecordStore(db.DB).Count(context.Background(), "product")
	require.NoError(t, err)
	return n
}

func TestRun_ImportsValidRecords(t *testing.T) {
	file := writeFile(t, "catalog.csv", catalogCSV)
	dbPath := filepath.Join(t.TempDir(), "ingest.db")

	out, err := execute(t, "run", "--no-progress", "--sqlite", dbPath, file)
	require.NoError(t, err)

	assert.Contains(t, out, "MAPPING")
	assert.Contains(t, out, "Product Name")
	assert.Contains(t, out, "completed")
	assert.Equal(t, int64(2), productCount(t, dbPath))
}

func TestRun_AutoFix(t *testing.T) {
	file := writeFile(t, "catalog.csv", catalogCSV)
	dbPath := filepath.Join(t.TempDir(), "ingest.db")
	archive := t.TempDir()

	out, err := execute(t, "run", "--no-progress", "--auto-fix", "--sqlite", dbPath, "--archive-dir", archive, file)
	require.NoError(t, err)

	assert.Contains(t, out, "REPAIR")
	assert.Equal(t, int64(3), productCount(t, dbPath))

	entries, err := os.ReadDir(archive)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRun_WithProgressBar(t *testing.T) {
	file := writeFile(t, "catalog.csv", catalogCSV)
	dbPath := filepath.Join(t.TempDir(), "ingest.db")

	_, err := execute(t, "run", "--batch-size", "1", "--sqlite", dbPath, file)
	require.NoError(t, err)
	assert.Equal(t, int64(2), productCount(t, dbPath))
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "run", "--sqlite", filepath.Join(t.TempDir(), "x.db"), filepath.Join(t.TempDir(), "absent.csv"))
		assert.Error(t, err)
	})
	t.Run("no argument", func(t *testing.T) {
		_, err := execute(t, "run")
		assert.Error(t, err)
	})
	t.Run("unknown entity", func(t *testing.T) {
		file := writeFile(t, "catalog.csv", catalogCSV)
		_, err := execute(t, "run", "--no-progress", "--entity", "spaceship", "--sqlite", filepath.Join(t.TempDir(), "x.db"), file)
		assert.Error(t, err)
	})
}

func TestInspect(t *testing.T) {
	file := writeFile(t, "catalog.csv", catalogCSV)

	out, err := execute(t, "inspect", "--rows", "2", file)
	require.NoError(t, err)

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "VALIDATION")
	assert.Contains(t, out, "PREVIEW")
	assert.Contains(t, out, "sku=MUG-001")
	assert.NotContains(t, out, "#3")
}

func TestMigrateCreateAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "migrate", "create", "--dir", dir, "Add brand index")
	require.NoError(t, err)
	assert.Contains(t, out, "000001")
	assert.FileExists(t, filepath.Join(dir, "000001_add_brand_index.up.sql"))

	out, err = execute(t, "migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "000001")

	_, err = execute(t, "migrate", "step", "abc")
	assert.Error(t, err)
}
