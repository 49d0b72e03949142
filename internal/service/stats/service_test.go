package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/deploytrack/deploytrack/internal/cache"
	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/pkg/config"
)

type fakeEventRepo struct {
	repoRows     []domain.GroupedCount
	repoHashRows []domain.GroupedCount
	facetRows    []domain.GroupedCount
	uniqueCount  int64
	urls         []string
	err          error
	repoCalls    int
}

func (f *fakeEventRepo) InsertEvent(context.Context, *domain.TelemetryEvent) error { return f.err }

func (f *fakeEventRepo) GroupedDeploysByRepo(context.Context) ([]domain.GroupedCount, error) {
	f.repoCalls++
	return f.repoRows, f.err
}

func (f *fakeEventRepo) GroupedDeploysByRepoHash(context.Context, string) ([]domain.GroupedCount, error) {
	return f.repoHashRows, f.err
}

func (f *fakeEventRepo) GroupedCategoryCounts(context.Context) ([]domain.GroupedCount, error) {
	return f.facetRows, f.err
}

func (f *fakeEventRepo) CountUniqueDeploys(context.Context, string) (int64, error) {
	return f.uniqueCount, f.err
}

func (f *fakeEventRepo) ListRepositoryURLs(context.Context) ([]string, error) {
	return f.urls, f.err
}

type memoryStore struct {
	data map[string][]byte
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	value, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (m *memoryStore) SetEx(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Close() {}

type staticCatalog struct {
	active map[string]bool
	err    error
}

func (c staticCatalog) ActiveServices(context.Context) (map[string]bool, error) {
	return c.active, c.err
}

type fakeEnricher struct {
	stats      *domain.GithubStats
	err        error
	statsCalls int
	enrichAll  int
}

func (f *fakeEnricher) Stats(context.Context, string) (*domain.GithubStats, error) {
	f.statsCalls++
	return f.stats, f.err
}

func (f *fakeEnricher) EnrichAll(_ context.Context, apps []*domain.AppSummary) {
	f.enrichAll++
	for _, app := range apps {
		app.GithubStats = f.stats
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(mutate func(*Service)) *Service {
	svc := New(&fakeEventRepo{}, newMemoryStore(), nil, nil, testLogger(), config.Config{
		StatsCacheTTL: 15 * time.Minute,
	})
	if mutate != nil {
		mutate(svc)
	}
	return svc
}

func sampleRepoRows() []domain.GroupedCount {
	return []domain.GroupedCount{
		{Key: []string{"https://github.com/acme/app", "2026", "01"}, Count: 3},
		{Key: []string{"https://github.com/acme/other", "2026", "01"}, Count: 1},
	}
}

func TestOverviewComputesAndCaches(t *testing.T) {
	repo := &fakeEventRepo{repoRows: sampleRepoRows()}
	store := newMemoryStore()
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.cache = store
	})

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if len(overview.Apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(overview.Apps))
	}
	if overview.Apps[0].Count != 3 {
		t.Fatalf("expected apps sorted by count, got %d first", overview.Apps[0].Count)
	}
	if len(overview.TopRepos) != 2 {
		t.Fatalf("expected 2 top repos when fewer than five exist, got %d", len(overview.TopRepos))
	}
	if overview.TopRepos[0].Value != 75 {
		t.Fatalf("expected 75%% share, got %v", overview.TopRepos[0].Value)
	}

	if _, err := svc.Overview(context.Background()); err != nil {
		t.Fatalf("cached Overview returned error: %v", err)
	}
	if repo.repoCalls != 1 {
		t.Fatalf("expected second call served from cache, got %d backend calls", repo.repoCalls)
	}
}

func TestOverviewRecomputesWhenCacheDown(t *testing.T) {
	repo := &fakeEventRepo{repoRows: sampleRepoRows()}
	store := newMemoryStore()
	store.err = errors.New("redis down")
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.cache = store
	})

	if _, err := svc.Overview(context.Background()); err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if _, err := svc.Overview(context.Background()); err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if repo.repoCalls != 2 {
		t.Fatalf("expected recompute on every call while cache is down, got %d", repo.repoCalls)
	}
}

func TestOverviewReturnsNoDataForEmptyStore(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.Overview(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestOverviewSurvivesBrokenCatalog(t *testing.T) {
	repo := &fakeEventRepo{
		repoRows: sampleRepoRows(),
		facetRows: []domain.GroupedCount{
			{Key: []string{"old-service", KindService}, Count: 2},
		},
	}
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.catalog = staticCatalog{err: errors.New("missing file")}
	})

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if len(overview.Services) != 1 {
		t.Fatalf("expected unfiltered services when catalog is broken, got %v", overview.Services)
	}
}

func TestOverviewFiltersDeprecatedServices(t *testing.T) {
	repo := &fakeEventRepo{
		repoRows: sampleRepoRows(),
		facetRows: []domain.GroupedCount{
			{Key: []string{"cloudant", KindService}, Count: 10},
			{Key: []string{"old-service", KindService}, Count: 5},
			{Key: []string{"go", KindRuntime}, Count: 4},
		},
	}
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.catalog = staticCatalog{active: map[string]bool{"cloudant": true}}
	})

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if len(overview.Services) != 1 || overview.Services[0].Key != "Cloudant" {
		t.Fatalf("expected only Cloudant to survive, got %v", overview.Services)
	}
	if len(overview.Runtimes) != 1 || overview.Runtimes[0].Key != "Go" {
		t.Fatalf("expected runtimes unfiltered, got %v", overview.Runtimes)
	}
}

func TestRepoStatsDecoratesBadgeLinks(t *testing.T) {
	repo := &fakeEventRepo{
		repoHashRows: []domain.GroupedCount{
			{Key: []string{"abc123", "https://github.com/acme/app", "2026", "01"}, Count: 2},
		},
	}
	enricher := &fakeEnricher{stats: &domain.GithubStats{Stars: 42}}
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.enricher = enricher
	})

	repoStats, err := svc.RepoStats(context.Background(), "abc123", "https://tracker.example.com")
	if err != nil {
		t.Fatalf("RepoStats returned error: %v", err)
	}
	app := repoStats.Apps[0]
	if app.BadgeImageURL != "https://tracker.example.com/stats/abc123/badge.svg" {
		t.Fatalf("unexpected badge URL %q", app.BadgeImageURL)
	}
	if app.ButtonLinkURL != "https://bluemix.net/deploy?repository=https://github.com/acme/app" {
		t.Fatalf("unexpected button link %q", app.ButtonLinkURL)
	}
	if app.GithubStats == nil || app.GithubStats.Stars != 42 {
		t.Fatalf("expected primary app enriched, got %+v", app.GithubStats)
	}
}

func TestRepoStatsSwallowsEnrichmentFailure(t *testing.T) {
	repo := &fakeEventRepo{
		repoHashRows: []domain.GroupedCount{
			{Key: []string{"abc123", "https://github.com/acme/app", "2026", "01"}, Count: 2},
		},
	}
	enricher := &fakeEnricher{err: errors.New("upstream down")}
	svc := newTestService(func(s *Service) {
		s.events = repo
		s.enricher = enricher
	})

	repoStats, err := svc.RepoStats(context.Background(), "abc123", "https://tracker.example.com")
	if err != nil {
		t.Fatalf("expected enrichment failure swallowed, got %v", err)
	}
	if repoStats.Apps[0].GithubStats != nil {
		t.Fatal("expected no stats attached on failure")
	}
}

func TestRepoStatsNoData(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.RepoStats(context.Background(), "missing", "https://tracker.example.com")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
