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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "wartungsplan/internal/log"
)

// Loader reads calendars from local files or http(s) URLs. URL calendars
// are revalidated with ETag / Last-Modified against a disk cache, and the
// cached copy is used when the server is unreachable.
type Loader struct {
	client   *http.Client
	cacheDir string
}

// NewLoader creates a Loader. cacheDir is only used for URL calendars; an
// empty value disables the disk cache.
func NewLoader(cacheDir string) *Loader {
	return &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		cacheDir: cacheDir,
	}
}

// Load reads and parses the calendar at location.
func (l *Loader) Load(ctx context.Context, location string) (*Calendar, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("calendar location is empty")
	}

	var (
		body []byte
		err  error
	)
	if isURL(location) {
		body, err = l.fetch(ctx, location)
	} else {
		body, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("read calendar %s: %w", redactURL(location), err)
	}

	cal, err := ParseICS(body)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", redactURL(location), err)
	}
	appLog.Debug("read calendar", "location", redactURL(location), "events", len(cal.Events))
	return cal, nil
}

func isURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	cache := l.cacheFor(rawURL)
	cached, validators := cache.lookup()
	shown := redactURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		validators.apply(req)
	}

	appLog.Info("calendar download", "url", shown, "cached", cached != nil)
	resp, err := l.client.Do(req)
	if err != nil {
		return cache.fallback(cached, shown, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if cached == nil {
			return nil, errors.New("server answered 304 without a cached calendar")
		}
		appLog.Debug("calendar unchanged", "url", shown)
		return cached, nil
	case http.StatusOK:
	default:
		return cache.fallback(cached, shown, fmt.Errorf("calendar server: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.fallback(cached, shown, err)
	}
	if err := cache.store(body, validatorsFrom(resp.Header)); err != nil {
		appLog.Warn("calendar cache not updated", "url", shown, "err", err.Error())
	}
	appLog.Info("calendar downloaded", "url", shown, "bytes", len(body))
	return body, nil
}

// validators are the HTTP cache validators of the last good download.
type validators struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Stored       time.Time `json:"stored"`
}

func validatorsFrom(h http.Header) validators {
	return validators{ETag: h.Get("ETag"), LastModified: h.Get("Last-Modified")}
}

func (v validators) apply(req *http.Request) {
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
}

// urlCache is the on-disk copy of one calendar URL. A zero dir disables it.
type urlCache struct {
	dir string
}

func (l *Loader) cacheFor(rawURL string) urlCache {
	if l.cacheDir == "" {
		return urlCache{}
	}
	sum := sha256.Sum256([]byte(rawURL))
	return urlCache{dir: filepath.Join(l.cacheDir, hex.EncodeToString(sum[:8]))}
}

// lookup returns the cached body, or nil if there is none.
func (c urlCache) lookup() ([]byte, validators) {
	var v validators
	if c.dir == "" {
		return nil, v
	}
	body, err := os.ReadFile(filepath.Join(c.dir, "calendar.ics"))
	if err != nil || len(body) == 0 {
		return nil, v
	}
	if data, err := os.ReadFile(filepath.Join(c.dir, "validators.json")); err == nil {
		_ = json.Unmarshal(data, &v)
	}
	return body, v
}

// store writes the body before the validators so that validators never
// describe a body that is not on disk.
func (c urlCache) store(body []byte, v validators) error {
	if c.dir == "" {
		return nil
	}
	if err := writeFileAtomic(filepath.Join(c.dir, "calendar.ics"), body); err != nil {
		return err
	}
	v.Stored = time.Now().UTC()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(c.dir, "validators.json"), data)
}

func (c urlCache) fallback(cached []byte, shown string, cause error) ([]byte, error) {
	if cached == nil {
		return nil, cause
	}
	appLog.Error("calendar download failed, using cached copy", cause, "url", shown)
	return cached, nil
}

// redactURL hides path and query of a calendar URL, which often carry
// access tokens. Local paths are returned unchanged.
func redactURL(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return location
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
