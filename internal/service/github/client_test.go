package github

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploytrack/deploytrack/internal/cache"
	"github.com/deploytrack/deploytrack/internal/domain"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (m *memStore) SetEx(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Close() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatsDisabledWithoutAPIKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := New(srv.URL, "", newMemStore(), time.Hour, nil, testLogger())
	stats, err := client.Stats(context.Background(), "https://github.com/acme/app")
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil stats without api key, got %+v", stats)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("expected no network call without api key")
	}
}

func TestStatsFetchesAndCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if got := r.URL.Query().Get("apiKey"); got != "secret" {
			t.Errorf("expected apiKey query parameter, got %q", got)
		}
		if got := r.URL.Query().Get("repo"); got != "https://github.com/acme/app" {
			t.Errorf("unexpected repo parameter %q", got)
		}
		_ = json.NewEncoder(w).Encode(domain.GithubStats{FullName: "acme/app", Stars: 7})
	}))
	defer srv.Close()

	store := newMemStore()
	client := New(srv.URL, "secret", store, time.Hour, nil, testLogger())

	stats, err := client.Stats(context.Background(), "https://github.com/acme/app")
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Stars != 7 {
		t.Fatalf("expected 7 stars, got %d", stats.Stars)
	}

	if _, err := client.Stats(context.Background(), "https://github.com/acme/app"); err != nil {
		t.Fatalf("cached Stats returned error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected second lookup served from cache, got %d fetches", calls)
	}
	if _, ok := store.data["repo-https://github.com/acme/app"]; !ok {
		t.Fatal("expected raw response cached under repo- key")
	}
}

func TestStatsDoesNotCacheFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newMemStore()
	client := New(srv.URL, "secret", store, time.Hour, nil, testLogger())

	if _, err := client.Stats(context.Background(), "https://github.com/acme/app"); err == nil {
		t.Fatal("expected error from failing upstream")
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing cached on failure, got %v", store.data)
	}
}

func TestEnrichAllIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("repo") == "https://github.com/acme/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.GithubStats{Stars: 1})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret", newMemStore(), time.Hour, nil, testLogger())
	apps := []*domain.AppSummary{
		{URL: "https://github.com/acme/one"},
		{URL: "https://github.com/acme/broken"},
		{URL: "https://github.com/acme/two"},
	}

	client.EnrichAll(context.Background(), apps)

	if apps[0].GithubStats == nil || apps[2].GithubStats == nil {
		t.Fatal("expected healthy lookups to enrich their apps")
	}
	if apps[1].GithubStats != nil {
		t.Fatal("expected failing lookup to leave its app untouched")
	}
}
