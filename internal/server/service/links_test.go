package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharelink/internal/server/database"
	"sharelink/internal/server/storage"
)

func newTestLinkService(t *testing.T) (*LinkService, *database.BadgerRepository, *memStore) {
	t.Helper()
	repo := newTestRepo(t)
	store := newMemStore()
	return NewLinkService(repo, store, 1024), repo, store
}

func TestLinkService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("public link", func(t *testing.T) {
		svc, repo, store := newTestLinkService(t)

		in := createInput("Report.PDF", "%PDF-1.7")
		in.Password = "ignored"
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, res.ID)
		assert.True(t, strings.HasPrefix(res.FileURL, storage.PublicPrefix))
		assert.True(t, strings.HasSuffix(res.FileURL, ".pdf"), "ref %q keeps the lower-cased extension", res.FileURL)
		assert.True(t, store.has(res.FileURL))

		link, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, database.VisibilityPublic, link.Visibility)
		assert.Nil(t, link.Password, "public links never carry a password")
		assert.Nil(t, link.Expiration)
		assert.Zero(t, link.AccessCount)
		assert.Equal(t, "Report.PDF", link.FileName)
		assert.Len(t, link.Checksum, 64)
	})

	t.Run("private link keeps its password", func(t *testing.T) {
		svc, repo, _ := newTestLinkService(t)

		in := createInput("notes.txt", "hi")
		in.Visibility = " Private "
		in.Password = "s3cret"
		in.Expiration = "2030-01-02"
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)

		link, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, database.VisibilityPrivate, link.Visibility)
		require.NotNil(t, link.Password)
		assert.Equal(t, "s3cret", *link.Password)
		require.NotNil(t, link.Expiration)
		assert.Equal(t, time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), *link.Expiration)
	})

	t.Run("private link with empty password", func(t *testing.T) {
		svc, repo, _ := newTestLinkService(t)

		in := createInput("a.txt", "x")
		in.Visibility = "private"
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)

		link, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Nil(t, link.Password)
	})

	t.Run("unparseable expiration is dropped", func(t *testing.T) {
		svc, repo, _ := newTestLinkService(t)

		in := createInput("a.txt", "x")
		in.Expiration = "next tuesday"
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)

		link, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Nil(t, link.Expiration)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)

		noOwner := createInput("a.txt", "x")
		noOwner.OwnerID = "  "
		_, err := svc.Create(ctx, noOwner)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "userId is required")

		noFile := createInput("a.txt", "")
		noFile.Content = nil
		_, err = svc.Create(ctx, noFile)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "file is required")

		badVisibility := createInput("a.txt", "x")
		badVisibility.Visibility = "unlisted"
		_, err = svc.Create(ctx, badVisibility)
		assert.ErrorIs(t, err, ErrValidation)

		assert.Zero(t, store.count(), "nothing is stored for rejected input")
	})

	t.Run("file too large", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)

		_, err := svc.Create(ctx, createInput("big.bin", strings.Repeat("a", 2048)))
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Zero(t, store.count())
	})

	t.Run("blob failure writes no record", func(t *testing.T) {
		svc, repo, store := newTestLinkService(t)
		store.saveErr = errors.New("bucket unavailable")

		_, err := svc.Create(ctx, createInput("a.txt", "x"))
		assert.ErrorIs(t, err, ErrStorage)

		links, err := repo.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("record failure removes the blob", func(t *testing.T) {
		store := newMemStore()
		svc := NewLinkService(failingRepo{newTestRepo(t)}, store, 0)

		_, err := svc.Create(ctx, createInput("a.txt", "x"))
		assert.ErrorIs(t, err, ErrStorage)
		assert.Zero(t, store.count())
	})
}

func TestLinkService_Update(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, visibility, password string) (*LinkService, *database.BadgerRepository, string) {
		svc, repo, _ := newTestLinkService(t)
		in := createInput("a.txt", "x")
		in.Visibility = visibility
		in.Password = password
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)
		return svc, repo, res.ID
	}

	t.Run("unknown id", func(t *testing.T) {
		svc, _, _ := newTestLinkService(t)
		err := svc.Update(ctx, "00000000-0000-0000-0000-000000000000", Patch{Title: strPtr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("title change", func(t *testing.T) {
		svc, repo, id := setup(t, "public", "")
		require.NoError(t, svc.Update(ctx, id, Patch{Title: strPtr("Renamed")}))

		link, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", link.Title)
	})

	t.Run("no effective change", func(t *testing.T) {
		svc, _, id := setup(t, "public", "")
		assert.ErrorIs(t, svc.Update(ctx, id, Patch{}), ErrNoChanges)
		assert.ErrorIs(t, svc.Update(ctx, id, Patch{Title: strPtr("Shared a.txt")}), ErrNoChanges)
		assert.ErrorIs(t, svc.Update(ctx, id, Patch{Password: strPtr("ignored")}), ErrNoChanges,
			"a password on a public link is discarded")
	})

	t.Run("making a link private with a password", func(t *testing.T) {
		svc, repo, id := setup(t, "public", "")
		require.NoError(t, svc.Update(ctx, id, Patch{Visibility: strPtr("private"), Password: strPtr("pw")}))

		link, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, database.VisibilityPrivate, link.Visibility)
		require.NotNil(t, link.Password)
		assert.Equal(t, "pw", *link.Password)
	})

	t.Run("making a link public clears the password", func(t *testing.T) {
		svc, repo, id := setup(t, "private", "pw")
		require.NoError(t, svc.Update(ctx, id, Patch{Visibility: strPtr("public")}))

		link, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, database.VisibilityPublic, link.Visibility)
		assert.Nil(t, link.Password)
	})

	t.Run("expiration set and cleared", func(t *testing.T) {
		svc, repo, id := setup(t, "public", "")
		require.NoError(t, svc.Update(ctx, id, Patch{Expiration: strPtr("2031-06-01T10:00:00Z")}))

		link, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, link.Expiration)
		assert.True(t, link.Expiration.Equal(time.Date(2031, 6, 1, 10, 0, 0, 0, time.UTC)))

		require.NoError(t, svc.Update(ctx, id, Patch{Expiration: strPtr("")}))
		link, err = repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, link.Expiration)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc, _, id := setup(t, "public", "")
		assert.ErrorIs(t, svc.Update(ctx, id, Patch{Visibility: strPtr("secret")}), ErrValidation)
		assert.ErrorIs(t, svc.Update(ctx, id, Patch{Expiration: strPtr("soon")}), ErrValidation)
	})

	t.Run("access count is untouched", func(t *testing.T) {
		svc, repo, id := setup(t, "public", "")
		_, err := repo.IncrementAccessCount(ctx, id)
		require.NoError(t, err)

		require.NoError(t, svc.Update(ctx, id, Patch{Title: strPtr("new")}))
		count, err := svc.AccessCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestLinkService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes blob and record", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)
		res, err := svc.Create(ctx, createInput("a.png", "img"))
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, res.ID))
		assert.False(t, store.has(res.FileURL))
		_, err = svc.Get(ctx, res.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown id touches no blob", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)
		assert.ErrorIs(t, svc.Delete(ctx, "missing"), ErrNotFound)
		assert.Zero(t, store.deletes)
	})

	t.Run("absent blob does not block deletion", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)
		res, err := svc.Create(ctx, createInput("a.png", "img"))
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, res.FileURL))

		require.NoError(t, svc.Delete(ctx, res.ID))
		_, err = svc.Get(ctx, res.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("blob failure keeps the record", func(t *testing.T) {
		svc, _, store := newTestLinkService(t)
		res, err := svc.Create(ctx, createInput("a.png", "img"))
		require.NoError(t, err)
		store.deleteErr = errors.New("permission denied")

		assert.ErrorIs(t, svc.Delete(ctx, res.ID), ErrStorage)
		_, err = svc.Get(ctx, res.ID)
		assert.NoError(t, err)
	})
}

func TestLinkService_ListAndStats(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestLinkService(t)

	first := createInput("1.txt", "one")
	second := createInput("2.txt", "three")
	second.OwnerEmail = "other@example.com"
	third := createInput("3.txt", "xx")

	var ids []string
	for _, in := range []CreateLinkInput{first, second, third} {
		res, err := svc.Create(ctx, in)
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, link := range all {
		assert.Equal(t, ids[i], link.ID, "links are listed in creation order")
	}

	mine, err := svc.List(ctx, " owner@example.com ")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, ids[0], mine[0].ID)
	assert.Equal(t, ids[2], mine[1].ID)

	none, err := svc.List(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalLinks)
	assert.Equal(t, int64(3), stats.ActiveLinks)
	assert.Equal(t, int64(10), stats.StorageUsed)
}

func TestParseExpiration(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"", nil},
		{"   ", nil},
		{"garbage", nil},
		{"2030-01-02", ptrTime(time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC))},
		{"2030-01-02T15:04", ptrTime(time.Date(2030, 1, 2, 15, 4, 0, 0, time.UTC))},
		{"2030-01-02T15:04:05", ptrTime(time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC))},
		{"2030-01-02T15:04:05+02:00", ptrTime(time.Date(2030, 1, 2, 13, 4, 5, 0, time.UTC))},
		{"2030-01-02T15:04:05.123Z", ptrTime(time.Date(2030, 1, 2, 15, 4, 5, 123000000, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseExpiration(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v want %v", got, tt.want)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"traversal", "../../etc/passwd", "passwd"},
		{"windows path", `C:\Users\me\notes.txt`, "notes.txt"},
		{"empty", "", "upload"},
		{"root", "/", "upload"},
		{"long stem keeps extension", strings.Repeat("a", 300) + ".txt", strings.Repeat("a", 251) + ".txt"},
		{"long extension is dropped", "a." + strings.Repeat("x", 300), "a." + strings.Repeat("x", 253)},
		{"multibyte cut on rune boundary", strings.Repeat("é", 200) + ".txt", strings.Repeat("é", 125) + ".txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeFilename(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 255)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestLinkService_CreateLongExtension(t *testing.T) {
	svc, repo, _ := newTestLinkService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, createInput("a."+strings.Repeat("x", 300), "hello"))
	require.NoError(t, err)

	link, err := repo.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, link.FileName, 255)
	assert.Len(t, strings.TrimPrefix(link.BlobRef, storage.PublicPrefix), 36, "over-long extensions stay out of the blob key")
}
