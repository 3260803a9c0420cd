package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// MaxObjectSize bounds a single report or export file.
const MaxObjectSize = 64 * 1024 * 1024

var (
	ErrInvalidPath   = errors.New("invalid object path")
	ErrPathTraversal = errors.New("path traversal not allowed")
	ErrTooLarge      = errors.New("object exceeds maximum size")
)

// FileStorage stores finished reports and exports.
type FileStorage interface {
	Upload(ctx context.Context, folder, name string, content []byte) error
}

// objectKey joins folder and name into a slash separated key after validating both.
func objectKey(folder, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidPath
	}
	key := name
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + name
	}
	if err := validatePath(key); err != nil {
		return "", err
	}
	return path.Clean(key), nil
}

func validatePath(p string) error {
	if p == "" {
		return ErrInvalidPath
	}
	if strings.Contains(p, "..") {
		return ErrPathTraversal
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return ErrPathTraversal
	}
	return nil
}

func sha256Hex(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
