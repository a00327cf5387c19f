package service

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"sharelink/internal/server/database"
	"sharelink/internal/server/metrics"
	"sharelink/internal/server/storage"
)

// Mode is how an allowed link is presented.
type Mode string

const (
	ModeImagePreview  Mode = "IMAGE_PREVIEW"
	ModePDFPreview    Mode = "PDF_PREVIEW"
	ModeOfficePreview Mode = "OFFICE_PREVIEW"
	ModeTextInline    Mode = "TEXT_INLINE"
	ModeDownloadOnly  Mode = "DOWNLOAD_ONLY"
)

var modesByExtension = map[string]Mode{
	"png":  ModeImagePreview,
	"jpg":  ModeImagePreview,
	"jpeg": ModeImagePreview,
	"gif":  ModeImagePreview,
	"bmp":  ModeImagePreview,
	"webp": ModeImagePreview,
	"pdf":  ModePDFPreview,
	"doc":  ModeOfficePreview,
	"docx": ModeOfficePreview,
	"txt":  ModeTextInline,
	"md":   ModeTextInline,
	"json": ModeTextInline,
	"js":   ModeTextInline,
	"html": ModeTextInline,
	"css":  ModeTextInline,
}

// Extension returns the lower-cased text after the last "." of the final
// path segment of ref, ignoring any query string or fragment. It returns ""
// when there is none.
func Extension(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		ref = u.Path
	} else if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	base := path.Base(strings.ReplaceAll(ref, `\`, "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// SelectMode maps a blob reference to its presentation mode. Unknown or
// missing extensions fall through to ModeDownloadOnly.
func SelectMode(ref string) Mode {
	if mode, ok := modesByExtension[Extension(ref)]; ok {
		return mode
	}
	return ModeDownloadOnly
}

// Preview is everything a page needs to present an allowed link.
type Preview struct {
	Mode        Mode
	Title       string
	FileName    string
	FileURL     string
	ViewerURL   string // OFFICE_PREVIEW only
	Text        string // TEXT_INLINE only
	TextMissing bool   // TEXT_INLINE content could not be fetched
	AccessCount int64
}

// Previewer builds Preview values, fetching text content from the blob
// store for TEXT_INLINE links. Fetched text is cached by blob reference;
// references are never reused, so entries only age out. Concurrent misses
// for the same reference share one fetch.
type Previewer struct {
	store        storage.Store
	cache        *expirable.LRU[string, string]
	fetches      singleflight.Group
	baseURL      string
	officeViewer string
	maxTextBytes int64
}

type PreviewerConfig struct {
	BaseURL         string
	OfficeViewerURL string
	MaxTextBytes    int64
	CacheSize       int
	CacheTTL        time.Duration
}

// NewPreviewer creates a Previewer backed by store.
func NewPreviewer(store storage.Store, cfg PreviewerConfig) *Previewer {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1
	}
	return &Previewer{
		store:        store,
		cache:        expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		officeViewer: cfg.OfficeViewerURL,
		maxTextBytes: cfg.MaxTextBytes,
	}
}

// Build assembles the preview for an allowed link. It never fails: a text
// blob that cannot be read yields TextMissing instead.
func (p *Previewer) Build(ctx context.Context, link *database.Link) *Preview {
	pv := &Preview{
		Mode:        SelectMode(link.BlobRef),
		Title:       link.Title,
		FileName:    link.FileName,
		FileURL:     link.BlobRef,
		AccessCount: link.AccessCount,
	}
	if pv.FileName == "" {
		pv.FileName = path.Base(link.BlobRef)
	}

	switch pv.Mode {
	case ModeOfficePreview:
		pv.ViewerURL = p.officeViewer + url.QueryEscape(p.absolute(link.BlobRef))
	case ModeTextInline:
		text, err := p.text(ctx, link.BlobRef)
		if err != nil {
			slog.Warn("text preview unavailable", "id", link.ID, "ref", link.BlobRef, "error", err)
			pv.TextMissing = true
		} else {
			pv.Text = text
		}
	}
	return pv
}

func (p *Previewer) text(ctx context.Context, ref string) (string, error) {
	if text, ok := p.cache.Get(ref); ok {
		metrics.PreviewCacheHits.Inc()
		return text, nil
	}
	metrics.PreviewCacheMisses.Inc()

	v, err, _ := p.fetches.Do(ref, func() (any, error) {
		rc, err := p.store.Open(ctx, ref)
		if err != nil {
			return "", err
		}
		defer rc.Close()

		var r io.Reader = rc
		if p.maxTextBytes > 0 {
			r = io.LimitReader(rc, p.maxTextBytes)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}

		text := string(data)
		p.cache.Add(ref, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// absolute turns a server-relative reference into a URL an external viewer
// can fetch.
func (p *Previewer) absolute(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return p.baseURL + ref
	}
	return ref
}
