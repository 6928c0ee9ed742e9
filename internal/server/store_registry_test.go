package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/webrip/webrip/internal/cache"
	"github.com/webrip/webrip/internal/config"
)

func TestStoreRegistryBuildsRoutes(t *testing.T) {
	storage := t.TempDir()
	override := filepath.Join(t.TempDir(), "custom")
	cfg := &config.Config{
		Global: config.GlobalConfig{
			StoragePath:   storage,
			DirectoryMode: 0o750,
			FileMode:      0o640,
			ExistOK:       true,
			CacheTTL:      config.TTL{Minutes: 15},
		},
		Stores: []config.StoreConfig{
			{Name: "pages", Upstream: "https://pages.example.com"},
			{Name: "jobs", Upstream: "https://jobs.example.com/api", Path: override, CacheTTL: config.TTL{Hours: 2}},
		},
	}

	registry, err := NewStoreRegistry(cfg, RegistryOptions{})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	pages, ok := registry.Lookup("pages")
	if !ok {
		t.Fatalf("pages not registered")
	}
	if pages.Dir != filepath.Join(storage, "pages") {
		t.Fatalf("unexpected dir: %s", pages.Dir)
	}
	if pages.CacheTTL != 15*time.Minute {
		t.Fatalf("unexpected ttl: %s", pages.CacheTTL)
	}
	if info, err := os.Stat(pages.Dir); err != nil || !info.IsDir() {
		t.Fatalf("store directory not created: %v", err)
	}

	jobs, ok := registry.Lookup("JOBS")
	if !ok {
		t.Fatalf("jobs not registered")
	}
	if jobs.Dir != override {
		t.Fatalf("unexpected override dir: %s", jobs.Dir)
	}
	if jobs.CacheTTL != 2*time.Hour {
		t.Fatalf("unexpected override ttl: %s", jobs.CacheTTL)
	}

	list := registry.List()
	if len(list) != 2 || list[0].Config.Name != "pages" || list[1].Config.Name != "jobs" {
		t.Fatalf("unexpected list order: %+v", list)
	}
}

func TestStoreRegistryRejectsDuplicates(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: t.TempDir(), ExistOK: true, CacheTTL: config.TTL{Minutes: 1}},
		Stores: []config.StoreConfig{
			{Name: "pages", Upstream: "https://a.example.com"},
			{Name: "Pages", Upstream: "https://b.example.com"},
		},
	}
	if _, err := NewStoreRegistry(cfg, RegistryOptions{Fs: afero.NewMemMapFs()}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestStoreRouteUpstreamFor(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: "/cache", ExistOK: true, CacheTTL: config.TTL{Minutes: 1}},
		Stores: []config.StoreConfig{{Name: "api", Upstream: "https://api.example.com/v1/"}},
	}
	registry, err := NewStoreRegistry(cfg, RegistryOptions{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	route, _ := registry.Lookup("api")

	cases := []struct {
		path, query, want string
	}{
		{"/items/1", "", "https://api.example.com/v1/items/1"},
		{"items", "page=2", "https://api.example.com/v1/items?page=2"},
		{"", "", "https://api.example.com/v1"},
	}
	for _, tc := range cases {
		if got := route.UpstreamFor(tc.path, tc.query); got != tc.want {
			t.Fatalf("UpstreamFor(%q, %q) = %q, want %q", tc.path, tc.query, got, tc.want)
		}
	}
}

func TestStoreRouteCacheFetchesWithCallerFetcher(t *testing.T) {
	calls := 0
	fetcher := cache.FetchFunc(func(ctx context.Context, key string) ([]byte, error) {
		calls++
		return []byte("body:" + key), nil
	})
	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: "/cache", ExistOK: true, CacheTTL: config.TTL{Minutes: 5}},
		Stores: []config.StoreConfig{{Name: "pages", Upstream: "https://pages.example.com"}},
	}
	registry, err := NewStoreRegistry(cfg, RegistryOptions{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	route, _ := registry.Lookup("pages")

	if _, err := route.Cache.GetOrFetch(context.Background(), "https://pages.example.com/a", nil); !errors.Is(err, cache.ErrFetch) {
		t.Fatalf("registry must not install a default fetcher, got %v", err)
	}

	for i := 0; i < 2; i++ {
		body, err := route.Cache.GetOrFetch(context.Background(), "https://pages.example.com/a", fetcher)
		if err != nil {
			t.Fatalf("GetOrFetch error: %v", err)
		}
		if string(body) != "body:https://pages.example.com/a" {
			t.Fatalf("unexpected body: %s", body)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}
	if n, _ := route.Map.Len(); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
}
