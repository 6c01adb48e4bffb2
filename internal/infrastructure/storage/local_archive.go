package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/erp/ingest/internal/domain/ingest"
)

// LocalArchive writes uploads below a directory on disk
type LocalArchive struct {
	root string
}

// NewLocalArchive creates the root directory if needed
func NewLocalArchive(root string) (*LocalArchive, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &LocalArchive{root: root}, nil
}

// Put implements ingest.RawArchive
func (a *LocalArchive) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	path, err := a.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return "file://" + path, nil
}

// Get reads an archived upload back
func (a *LocalArchive) Get(_ context.Context, key string) ([]byte, error) {
	path, err := a.path(strings.TrimPrefix(key, "file://"+a.root+string(filepath.Separator)))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

func (a *LocalArchive) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key escapes archive root: %q", key)
	}
	return filepath.Join(a.root, clean), nil
}

// NopArchive discards uploads. Used when archiving is disabled.
type NopArchive struct{}

// Put implements ingest.RawArchive and stores nothing
func (NopArchive) Put(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

var (
	_ ingest.RawArchive = (*LocalArchive)(nil)
	_ ingest.RawArchive = NopArchive{}
)
