package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// UploadOptions are the link settings sent with an upload.
type UploadOptions struct {
	UserID     string
	UserEmail  string
	Title      string
	Private    bool
	Password   string
	Expiration time.Time // zero means never
}

type UploadResult struct {
	ID      string `json:"id"`
	FileURL string `json:"fileUrl"`
}

type Stats struct {
	TotalLinks  int64 `json:"total_links"`
	ActiveLinks int64 `json:"active_links"`
	TotalViews  int64 `json:"total_views"`
	StorageUsed int64 `json:"storage_used_bytes"`
}

// Client talks to a sharelink server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// LinkURL is the page where a link is viewed.
func (c *Client) LinkURL(id string) string {
	return c.baseURL + "/links/" + url.PathEscape(id)
}

// Upload streams the bundle to POST /links.
func (c *Client) Upload(ctx context.Context, b *Bundle, opts UploadOptions) (*UploadResult, error) {
	src, err := b.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", b.Name, err)
	}
	defer src.Close()

	fields := map[string]string{
		"userId":    opts.UserID,
		"userEmail": opts.UserEmail,
		"title":     opts.Title,
	}
	if opts.Private {
		fields["visibility"] = "private"
		fields["password"] = opts.Password
	}
	if !opts.Expiration.IsZero() {
		fields["expiration"] = opts.Expiration.UTC().Format(time.RFC3339)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, fields, b.Name, src))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/links", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res UploadResult
	if err := c.do(req, http.StatusCreated, &res); err != nil {
		pr.Close()
		return nil, err
	}
	return &res, nil
}

func writeForm(mw *multipart.Writer, fields map[string]string, name string, src io.Reader) error {
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// Stats fetches GET /api/stats.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := c.do(req, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AccessCount fetches GET /analytics/:id.
func (c *Client) AccessCount(ctx context.Context, id string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analytics/"+url.PathEscape(id), nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		AccessCount int64 `json:"accessCount"`
	}
	if err := c.do(req, http.StatusOK, &body); err != nil {
		return 0, err
	}
	return body.AccessCount, nil
}

// Delete calls DELETE /links/:id.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/links/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
