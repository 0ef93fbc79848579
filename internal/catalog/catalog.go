// Package catalog resolves environment identifiers to the guest URLs
// agents should host. The source is a JSON document, fetched over HTTP or
// read from disk, cached with a TTL and parsed tolerantly: records missing
// an id are skipped, not fatal.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scalewob/wobbridge/internal/logx"
)

// ErrNotFound means no catalog record carries the requested id.
var ErrNotFound = errors.New("environment not found")

// Environment is one catalog record.
type Environment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CDNURL      string `json:"cdnUrl,omitempty"`
	LocalURL    string `json:"localUrl,omitempty"`
}

// URL returns the preferred source for the environment: the CDN when
// configured, the local path otherwise.
func (e Environment) URL() string {
	if e.CDNURL != "" {
		return e.CDNURL
	}
	return e.LocalURL
}

// Fallback returns the secondary source to try after the primary fails,
// or "" when there is none.
func (e Environment) Fallback() string {
	if e.CDNURL != "" && e.LocalURL != "" {
		return e.LocalURL
	}
	return ""
}

// Service loads and caches the environment catalog.
type Service struct {
	source string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	cached    []Environment
	fetchedAt time.Time
}

// New builds a catalog service over a URL or local file path; ttl <= 0
// means 5 minutes.
func New(source string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{source: source, ttl: ttl, client: &http.Client{Timeout: 10 * time.Second}}
}

// List returns every catalog environment, refreshing the cache when stale.
// A fetch failure is retried once before being returned; a stale cache is
// served rather than failing when the refresh fails entirely.
func (s *Service) List(ctx context.Context) ([]Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}
	envs, err := s.fetch(ctx)
	if err != nil {
		logx.Log.Warn().Err(err).Str("source", s.source).Msg("catalog fetch failed; retrying")
		envs, err = s.fetch(ctx)
	}
	if err != nil {
		if s.cached != nil {
			logx.Log.Warn().Err(err).Msg("catalog refresh failed; serving stale cache")
			return s.cached, nil
		}
		return nil, err
	}
	s.cached = envs
	s.fetchedAt = time.Now()
	return envs, nil
}

// Lookup resolves one environment by id.
func (s *Service) Lookup(ctx context.Context, id string) (Environment, error) {
	envs, err := s.List(ctx)
	if err != nil {
		return Environment{}, err
	}
	for _, e := range envs {
		if e.ID == id {
			return e, nil
		}
	}
	return Environment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Invalidate drops the cache so the next List refetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) fetch(ctx context.Context) ([]Environment, error) {
	raw, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

func (s *Service) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(s.source, "http://") || strings.HasPrefix(s.source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("catalog fetch: unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(s.source)
}

// parse accepts either a bare array of environments or an object with an
// `environments` array. Records without an id are skipped.
func parse(raw []byte) ([]Environment, error) {
	doc := gjson.ParseBytes(raw)
	list := doc
	if doc.IsObject() {
		list = doc.Get("environments")
	}
	if !list.IsArray() {
		return nil, errors.New("catalog: no environment array found")
	}
	var envs []Environment
	list.ForEach(func(_, rec gjson.Result) bool {
		id := rec.Get("id").String()
		if id == "" {
			logx.Log.Debug().Str("record", rec.Raw).Msg("skipping catalog record without id")
			return true
		}
		envs = append(envs, Environment{
			ID:          id,
			Name:        rec.Get("name").String(),
			Description: rec.Get("description").String(),
			CDNURL:      rec.Get("cdnUrl").String(),
			LocalURL:    rec.Get("localUrl").String(),
		})
		return true
	})
	return envs, nil
}
