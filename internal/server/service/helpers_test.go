package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharelink/internal/server/database"
	"sharelink/internal/server/storage"
)

// memStore is an in-memory storage.Store with injectable failures.
type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	saveErr   error
	openErr   error
	deleteErr error
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) EnsureReady(ctx context.Context) error { return nil }

func (m *memStore) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := storage.PublicPrefix + key
	m.blobs[ref] = b
	return ref, nil
}

func (m *memStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, storage.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.blobs[ref]; !ok {
		return storage.ErrBlobNotFound
	}
	delete(m.blobs, ref)
	return nil
}

func (m *memStore) has(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// failingRepo wraps a repository and fails Create.
type failingRepo struct {
	LinkRepository
}

func (failingRepo) Create(ctx context.Context, link *database.Link) error {
	return errors.New("disk full")
}

func newTestRepo(t *testing.T) *database.BadgerRepository {
	t.Helper()
	repo, err := database.NewBadgerRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

func createInput(name, body string) CreateLinkInput {
	return CreateLinkInput{
		OwnerID:     "owner-1",
		OwnerEmail:  "owner@example.com",
		Title:       "Shared " + name,
		FileName:    name,
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
		Content:     strings.NewReader(body),
	}
}
