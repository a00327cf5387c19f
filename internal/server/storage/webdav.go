package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/studio-b12/gowebdav"
)

type WebDAVConfig struct {
	URL      string
	User     string
	Password string
	// PublicURL is the base browsers use to fetch files; defaults to URL.
	PublicURL string
}

// WebDAVStore keeps blobs on a WebDAV share. The client has no context
// support, so ctx is only checked before each call.
type WebDAVStore struct {
	client *gowebdav.Client
	prefix string // {PublicURL}/
}

// NewWebDAVStore creates a WebDAV-backed store.
func NewWebDAVStore(cfg WebDAVConfig) *WebDAVStore {
	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		public = strings.TrimRight(cfg.URL, "/")
	}
	return &WebDAVStore{
		client: gowebdav.NewClient(cfg.URL, cfg.User, cfg.Password),
		prefix: public + "/",
	}
}

// EnsureReady verifies the share is reachable with the configured
// credentials.
func (s *WebDAVStore) EnsureReady(ctx context.Context) error {
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to webdav: %w", err)
	}
	return nil
}

// Save writes data as /{key} on the share.
func (s *WebDAVStore) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.client.WriteStream("/"+key, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return s.prefix + key, nil
}

// Open streams the file behind ref.
func (s *WebDAVStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := s.keyFor(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := s.client.ReadStream("/" + key)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return rc, nil
}

// Delete removes the file behind ref.
func (s *WebDAVStore) Delete(ctx context.Context, ref string) error {
	key, err := s.keyFor(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.Stat("/" + key); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if err := s.client.Remove("/" + key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *WebDAVStore) keyFor(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, s.prefix)
	if !ok || !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return key, nil
}
