package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PublicPrefix is the URL path under which locally stored files are served.
const PublicPrefix = "/uploads/"

// FileSystemStore stores uploaded files on the local filesystem.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureReady creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureReady(ctx context.Context) error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to {basePath}/{key} and returns the public path
// /uploads/{key}.
func (fs *FileSystemStore) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	filePath := filepath.Join(fs.basePath, key)

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return PublicPrefix + key, nil
}

// Open returns a reader over the stored file.
func (fs *FileSystemStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	filePath, err := fs.pathFor(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the stored file.
func (fs *FileSystemStore) Delete(ctx context.Context, ref string) error {
	filePath, err := fs.pathFor(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

func (fs *FileSystemStore) pathFor(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, PublicPrefix)
	if !ok || !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(fs.basePath, key), nil
}

// validKey accepts a single path segment only.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
