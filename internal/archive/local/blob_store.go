// Package local provides a filesystem-backed blob store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore writes objects under a base directory.
type BlobStore struct {
	baseDir string
}

// New constructs a BlobStore rooted at baseDir, creating it if needed.
func New(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("archive base dir is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve archive dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &BlobStore{baseDir: abs}, nil
}

// PutObject writes data to baseDir/path and returns a file:// URI. The
// content type is ignored; the extension carries that information locally.
func (s *BlobStore) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	return "file://" + full, nil
}

// resolve joins path under baseDir and rejects escapes.
func (s *BlobStore) resolve(path string) (string, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object path %q escapes archive dir", path)
	}
	return full, nil
}
