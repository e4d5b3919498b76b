// Package source loads the schedule payload: from a local file, from an
// HTTP endpoint with a disk-backed conditional-GET cache, or from the
// built-in demo generator.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "backupviz/internal/log"
	"backupviz/internal/model"
)

// Loader produces a payload. Implementations must honour ctx.
type Loader interface {
	Load(ctx context.Context) (model.Payload, error)
}

// FileLoader reads a payload from disk. Files ending in .ics are read as
// iCalendar feeds; everything else as JSON.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(ctx context.Context) (model.Payload, error) {
	if err := ctx.Err(); err != nil {
		return model.Payload{}, err
	}
	body, err := os.ReadFile(l.Path)
	if err != nil {
		return model.Payload{}, fmt.Errorf("source: read %s: %w", l.Path, err)
	}
	p, err := decodeBody(l.Path, "", body)
	if err != nil {
		return model.Payload{}, err
	}
	appLog.Info("payload loaded from file", "path", l.Path, "entries", len(p.Data))
	return p, nil
}

// FetchResult is the raw outcome of one HTTP fetch.
type FetchResult struct {
	Body        []byte
	ContentType string
	FromCache   bool // true if a cached body was reused
}

// cacheEntry holds HTTP cache metadata for the payload URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves a payload over HTTP, honouring ETag / Last-Modified and
// falling back to the last good body when the remote is unavailable.
type Fetcher struct {
	client   *http.Client
	url      string
	cacheDir string
}

// NewFetcher creates a Fetcher for url. cacheDir holds per-URL cache
// subdirectories; an empty value uses a relative directory so development
// runs need no special permissions.
func NewFetcher(url, cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/payload-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		url:      url,
		cacheDir: cacheDir,
	}
}

// Load fetches and decodes the payload.
func (f *Fetcher) Load(ctx context.Context) (model.Payload, error) {
	res, err := f.Fetch(ctx)
	if err != nil {
		return model.Payload{}, err
	}
	return decodeBody(f.url, res.ContentType, res.Body)
}

// Fetch performs one conditional GET.
func (f *Fetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if f.url == "" {
		return FetchResult{}, errors.New("source: payload URL is empty")
	}

	cachePath := f.cachePath()
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)
	cached := FetchResult{Body: cachedBody, ContentType: meta.ContentType, FromCache: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "application/json, text/calendar;q=0.5")
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("payload fetch start", "url", redactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("payload fetch network error, using cached body", err, "url", redactURL(f.url))
			return cached, nil
		}
		return FetchResult{}, fmt.Errorf("source: fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}
		newMeta := cacheEntry{
			URL:          f.url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			ContentType:  resp.Header.Get("Content-Type"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// The fresh body is still good.
			appLog.Error("payload cache save failed", err, "url", redactURL(f.url))
		}
		appLog.Info("payload fetch success", "url", redactURL(f.url), "bytes", len(body))
		return FetchResult{Body: body, ContentType: newMeta.ContentType}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("source: 304 Not Modified but no cached body available")
		}
		appLog.Debug("payload not modified; using cache", "url", redactURL(f.url))
		return cached, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("payload fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(f.url), "status", resp.StatusCode)
			return cached, nil
		}
		return FetchResult{}, fmt.Errorf("source: fetch: %s", resp.Status)
	}
}

func (f *Fetcher) cachePath() string {
	sum := sha256.Sum256([]byte(f.url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// decodeBody picks the JSON or iCalendar decoder from the name or the
// response content type.
func decodeBody(name, contentType string, body []byte) (model.Payload, error) {
	if strings.HasSuffix(strings.ToLower(name), ".ics") || strings.HasPrefix(contentType, "text/calendar") {
		return ParseICS(body)
	}
	p, err := model.Decode(body)
	if err != nil {
		return model.Payload{}, fmt.Errorf("source: decode %s: %w", redactURL(name), err)
	}
	return p, nil
}

// redactURL hides everything after the host of a URL for logging. Plain
// file paths are returned unchanged.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i == -1 {
		return u
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j != -1 {
		return u[:i+3+j] + "/...(redacted)"
	}
	if j := strings.IndexByte(rest, '?'); j != -1 {
		return u[:i+3+j] + "/...(redacted)"
	}
	return u
}
