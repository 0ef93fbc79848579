package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const sampleCatalog = `{
  "environments": [
    {"id": "demo-shop", "name": "Demo Shop", "cdnUrl": "https://cdn.test/shop/index.html", "localUrl": "/environments/shop/index.html"},
    {"id": "todo-app", "name": "Todo App", "localUrl": "/environments/todo/index.html"},
    {"name": "no id, skipped"}
  ]
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environments.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseTolerant(t *testing.T) {
	svc := New(writeCatalog(t, sampleCatalog), time.Minute)
	envs, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 2 {
		t.Fatalf("got %d environments, want 2 (record without id skipped)", len(envs))
	}
}

func TestParseBareArray(t *testing.T) {
	svc := New(writeCatalog(t, `[{"id": "a", "name": "A"}]`), time.Minute)
	envs, err := svc.List(context.Background())
	if err != nil || len(envs) != 1 || envs[0].ID != "a" {
		t.Fatalf("envs = %v, err = %v", envs, err)
	}
}

func TestParseGarbage(t *testing.T) {
	svc := New(writeCatalog(t, `{"nope": true}`), time.Minute)
	if _, err := svc.List(context.Background()); err == nil {
		t.Fatal("expected an error for a catalog without environments")
	}
}

func TestLookupAndURLs(t *testing.T) {
	svc := New(writeCatalog(t, sampleCatalog), time.Minute)
	ctx := context.Background()

	shop, err := svc.Lookup(ctx, "demo-shop")
	if err != nil {
		t.Fatal(err)
	}
	if shop.URL() != "https://cdn.test/shop/index.html" {
		t.Fatalf("URL() = %q, want the CDN source", shop.URL())
	}
	if shop.Fallback() != "/environments/shop/index.html" {
		t.Fatalf("Fallback() = %q", shop.Fallback())
	}

	todo, err := svc.Lookup(ctx, "todo-app")
	if err != nil {
		t.Fatal(err)
	}
	if todo.URL() != "/environments/todo/index.html" || todo.Fallback() != "" {
		t.Fatalf("local-only environment: url=%q fallback=%q", todo.URL(), todo.Fallback())
	}

	if _, err := svc.Lookup(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sampleCatalog))
	}))
	defer srv.Close()

	svc := New(srv.URL, time.Minute)
	envs, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 2 {
		t.Fatalf("got %d environments", len(envs))
	}
	if calls.Load() != 2 {
		t.Fatalf("made %d requests, want 2 (one retry)", calls.Load())
	}
}

func TestCacheServesWithoutRefetch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sampleCatalog))
	}))
	defer srv.Close()

	svc := New(srv.URL, time.Minute)
	ctx := context.Background()
	if _, err := svc.List(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.List(ctx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("made %d requests, want 1 (second served from cache)", calls.Load())
	}

	svc.Invalidate()
	if _, err := svc.List(ctx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("made %d requests after invalidation, want 2", calls.Load())
	}
}

func TestStaleCacheServedOnFailure(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	svc := New(path, time.Nanosecond)
	ctx := context.Background()
	if _, err := svc.List(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	envs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("stale cache should be served on refresh failure: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("got %d environments from stale cache", len(envs))
	}
}
