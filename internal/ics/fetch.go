package ics

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
	"time"

	"github.com/google/renameio/v2"

	appLog "uqconnect/internal/log"
	"uqconnect/internal/metrics"
)

var (
	// ErrUpstreamStatus wraps non-2xx responses from a calendar host.
	ErrUpstreamStatus = errors.New("upstream returned non-OK status")
	// ErrBodyTooLarge is returned when a calendar exceeds the size cap.
	ErrBodyTooLarge = errors.New("calendar body exceeds size limit")
)

const (
	defaultUserAgent = "UQConnect/1.0 (+https://uqconnect.local)"
	defaultMaxBytes  = 5 << 20
)

// FetchResult contains the outcome of fetching a single ICS URL.
type FetchResult struct {
	URL       string
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused the cached body
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetcherOptions configures a Fetcher. Zero values fall back to defaults.
type FetcherOptions struct {
	CacheDir  string
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
}

// Fetcher fetches ICS feeds with HTTP caching (ETag / Last-Modified) and a
// disk-backed cache.
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a new ICS Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.CacheDir == "" {
		opts.CacheDir = "./data/ics-cache"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		cacheDir:  opts.CacheDir,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

// Fetch fetches a single ICS URL, honoring ETag and Last-Modified. On a
// network error or non-OK status it falls back to the cached body when one
// exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	cachePath := f.cachePathForURL(url)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, text/plain, */*")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("ics fetch start", "url", appLog.RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "url", appLog.RedactURL(url))
			metrics.ICSFetches.WithLabelValues("cache_fallback").Inc()
			return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil
		}
		metrics.ICSFetches.WithLabelValues("error").Inc()
		return FetchResult{}, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			metrics.ICSFetches.WithLabelValues("error").Inc()
			return FetchResult{}, fmt.Errorf("read calendar body: %w", err)
		}
		if int64(len(body)) > f.maxBytes {
			metrics.ICSFetches.WithLabelValues("error").Inc()
			return FetchResult{}, ErrBodyTooLarge
		}

		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "url", appLog.RedactURL(url))
		}

		appLog.Info("ics fetch success", "url", appLog.RedactURL(url), "status", resp.StatusCode, "bytes", len(body))
		metrics.ICSFetches.WithLabelValues("ok").Inc()
		return FetchResult{URL: url, Body: body}, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			metrics.ICSFetches.WithLabelValues("error").Inc()
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", appLog.RedactURL(url))
		metrics.ICSFetches.WithLabelValues("not_modified").Inc()
		return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil

	default:
		statusErr := fmt.Errorf("%w (HTTP %d)", ErrUpstreamStatus, resp.StatusCode)
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", statusErr, "url", appLog.RedactURL(url))
			metrics.ICSFetches.WithLabelValues("cache_fallback").Inc()
			return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil
		}
		metrics.ICSFetches.WithLabelValues("error").Inc()
		return FetchResult{}, statusErr
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// First 16 hex chars as directory name.
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
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := renameio.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
