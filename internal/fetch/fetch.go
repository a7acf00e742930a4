// Package fetch retrieves the schedule page.
//
// One GET per run with a fixed timeout; no retries. Any transport error or
// non-2xx status is returned to the caller, which aborts the run before any
// state is touched.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent identifies the watcher to the upstream site.
const DefaultUserAgent = "Mozilla/5.0 (compatible; DensukeWatcher/1.0; +https://github.com/)"

var ErrTooLarge = errors.New("response body exceeds limit")

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // Default: 20s.
	MaxBytes  int64         // Default: 10MB.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Document is one fetched page.
type Document struct {
	Body       []byte
	StatusCode int
	Hash       string // SHA-256 of Body, hex
	FetchedAt  time.Time
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode)
}

// Fetcher performs the page GET.
type Fetcher struct {
	client *resty.Client
	cfg    Config
}

func New(cfg Config) *Fetcher {
	cfg.defaults()
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &Fetcher{client: c, cfg: cfg}
}

// Fetch GETs url and returns the full body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Document, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return Document{}, fmt.Errorf("GET %s: %w", url, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(raw, 64*1024))
		return Document{StatusCode: code}, &StatusError{StatusCode: code, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(raw, f.cfg.MaxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return Document{}, fmt.Errorf("GET %s: %w (%d bytes)", url, ErrTooLarge, f.cfg.MaxBytes)
	}

	return Document{
		Body:       body,
		StatusCode: resp.StatusCode(),
		Hash:       Hash(body),
		FetchedAt:  time.Now(),
	}, nil
}

// Hash returns the hex SHA-256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
