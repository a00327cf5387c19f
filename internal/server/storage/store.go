package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sharelink/internal/server/config"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidRef   = errors.New("blob reference does not belong to this store")
)

// Store abstracts the blob backend: store bytes under a key and get back a
// retrievable reference, then open or delete by that reference.
type Store interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete returns ErrBlobNotFound when nothing is stored under ref.
	Delete(ctx context.Context, ref string) error
	EnsureReady(ctx context.Context) error
}

// NewStore builds the backend selected by cfg.StorageType.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.StorageType {
	case config.StorageLocal:
		return NewFileSystemStore(cfg.StoragePath), nil
	case config.StorageMinio:
		return NewMinioStore(MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
	case config.StorageWebDAV:
		return NewWebDAVStore(WebDAVConfig{
			URL:       cfg.WebDAVURL,
			User:      cfg.WebDAVUser,
			Password:  cfg.WebDAVPassword,
			PublicURL: cfg.WebDAVPublicURL,
		}), nil
	}
	return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
}
