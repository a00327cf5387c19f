package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Upload(t *testing.T) {
	file := writeFiles(t, t.TempDir(), map[string]string{"notes.txt": "hello"})[0]
	bundle, err := NewBundle([]SharePath{{FullPath: file, Kind: PathFile}}, time.Now())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/links", r.URL.Path)

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "u-1", r.FormValue("userId"))
		assert.Equal(t, "me@example.com", r.FormValue("userEmail"))
		assert.Equal(t, "private", r.FormValue("visibility"))
		assert.Equal(t, "pw", r.FormValue("password"))
		assert.Equal(t, "2030-01-01T00:00:00Z", r.FormValue("expiration"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "hello", string(data))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "abc", "fileUrl": "/uploads/abc.txt"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	res, err := c.Upload(context.Background(), bundle, UploadOptions{
		UserID:     "u-1",
		UserEmail:  "me@example.com",
		Private:    true,
		Password:   "pw",
		Expiration: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ID)
	assert.Equal(t, srv.URL+"/links/abc", c.LinkURL(res.ID))
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analytics/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Link not found"}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)

	_, err := c.AccessCount(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Link not found", apiErr.Message)

	err = c.Delete(context.Background(), "x")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestClient_StatsAndViews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/stats":
			w.Write([]byte(`{"total_links":3,"active_links":2,"total_views":9,"storage_used_bytes":2048}`))
		case "/analytics/abc":
			w.Write([]byte(`{"accessCount":7}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{TotalLinks: 3, ActiveLinks: 2, TotalViews: 9, StorageUsed: 2048}, stats)

	n, err := c.AccessCount(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestClient_UploadArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeFiles(t, dir, map[string]string{"index.html": "<h1>hi</h1>"})
	bundle, err := NewBundle([]SharePath{{FullPath: dir, Kind: PathDir}}, time.Now())
	require.NoError(t, err)

	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			gotName = hdr.Filename
		}
		assert.Empty(t, r.FormValue("visibility"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"z","fileUrl":"/uploads/z.zip"}`))
	}))
	defer srv.Close()

	_, err = New(srv.URL, nil).Upload(context.Background(), bundle, UploadOptions{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, "site.zip", gotName)
}
