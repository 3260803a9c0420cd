package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStorage writes objects under a root directory. Used when no bucket is configured.
type LocalStorage struct {
	rootDir string
}

func NewLocalStorage(rootDir string) (*LocalStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory: %w", err)
	}
	return &LocalStorage{rootDir: rootDir}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, folder, name string, content []byte) error {
	if len(content) > MaxObjectSize {
		return ErrTooLarge
	}
	key, err := objectKey(folder, name)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial object.
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return fmt.Errorf("writing temp object: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming object: %w", err)
	}

	slog.InfoContext(ctx, "object stored", "backend", "local", "key", key, "bytes", len(content), "sha256", sha256Hex(content))
	return nil
}

// Read returns a stored object.
func (s *LocalStorage) Read(folder, name string) ([]byte, error) {
	key, err := objectKey(folder, name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.rootDir, filepath.FromSlash(key)))
}
