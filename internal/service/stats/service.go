package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/deploytrack/deploytrack/internal/cache"
	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/repository"
	"github.com/deploytrack/deploytrack/pkg/config"
)

// ErrNoData signals an aggregation pass found no events for the requested
// view. Rendering surfaces it as an explicit empty state.
var ErrNoData = errors.New("stats: no data for this view")

const (
	cacheKeyOverview = "statsPage"
	topRepoCount     = 5
)

// Enricher augments accumulators with external popularity data.
type Enricher interface {
	Stats(ctx context.Context, repo string) (*domain.GithubStats, error)
	EnrichAll(ctx context.Context, apps []*domain.AppSummary)
}

// Service assembles deployment rollups from grouped event-store views.
type Service struct {
	events   repository.EventRepository
	cache    cache.Store
	catalog  CatalogSource
	enricher Enricher
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

// New constructs the stats service.
func New(events repository.EventRepository, store cache.Store, catalog CatalogSource, enricher Enricher, logger *slog.Logger, cfg config.Config) *Service {
	if logger != nil {
		logger = logger.With("component", "stats")
	}
	return &Service{
		events:   events,
		cache:    store,
		catalog:  catalog,
		enricher: enricher,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Overview returns the global rollup, served from the cache when a fresh
// entry exists. A miss triggers a full recomputation.
func (s *Service) Overview(ctx context.Context) (*domain.StatsOverview, error) {
	payload, err := cache.GetOrCompute(ctx, s.cache, cacheKeyOverview, s.cfg.StatsCacheTTL, s.computeOverview)
	if err != nil {
		return nil, err
	}
	var overview domain.StatsOverview
	if err := json.Unmarshal(payload, &overview); err != nil {
		return nil, fmt.Errorf("decode cached overview: %w", err)
	}
	return &overview, nil
}

func (s *Service) computeOverview(ctx context.Context) ([]byte, error) {
	rows, err := s.events.GroupedDeploysByRepo(ctx)
	if err != nil {
		return nil, fmt.Errorf("grouped deploys: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	apps := ReduceRepoRows(rows)

	facetRows, err := s.events.GroupedCategoryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("grouped categories: %w", err)
	}
	tallies := TallyFacets(facetRows)

	var active map[string]bool
	if s.catalog != nil {
		active, err = s.catalog.ActiveServices(ctx)
		if err != nil {
			// A broken catalog must not take the whole overview down;
			// the service tally simply goes unfiltered.
			if s.logger != nil {
				s.logger.Warn("active service catalog unavailable", "error", err)
			}
			active = nil
		}
	}

	runtimes := NormalizeCategories(tallies[KindRuntime], nil)
	services := NormalizeCategories(tallies[KindService], active)
	languages := NormalizeCategories(tallies[KindLanguage], nil)
	SortItems(runtimes)
	SortItems(services)
	SortItems(languages)

	if s.enricher != nil {
		s.enricher.EnrichAll(ctx, apps)
	}

	SortAppsByCount(apps)
	var sum int64
	for _, app := range apps {
		sum += app.Count
	}

	overview := domain.StatsOverview{
		Apps:        apps,
		TopRepos:    TopRepoShares(apps, sum, topRepoCount),
		Services:    services,
		Runtimes:    runtimes,
		Languages:   languages,
		GeneratedAt: s.now().UTC(),
	}
	return json.Marshal(overview)
}

// RepoStats returns the rollup for one repository hash. baseURL is the
// externally visible scheme://host used to build badge links.
func (s *Service) RepoStats(ctx context.Context, hash, baseURL string) (*domain.RepoStats, error) {
	rows, err := s.events.GroupedDeploysByRepoHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("grouped deploys by hash: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	apps := ReduceRepoHashRows(rows)
	for _, app := range apps {
		decorateBadgeLinks(app, baseURL)
	}
	SortAppsByCount(apps)

	if s.enricher != nil {
		primary := apps[0]
		stats, err := s.enricher.Stats(ctx, primary.URL)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("github stats lookup failed", "repo", primary.URL, "error", err)
			}
		} else {
			primary.GithubStats = stats
		}
	}
	return &domain.RepoStats{Apps: apps}, nil
}

// BadgeCount returns the number of unique deployment rows for a hash.
func (s *Service) BadgeCount(ctx context.Context, hash string) (int64, error) {
	return s.events.CountUniqueDeploys(ctx, hash)
}

// Repositories lists the distinct repository URLs seen in the window.
func (s *Service) Repositories(ctx context.Context) ([]string, error) {
	return s.events.ListRepositoryURLs(ctx)
}

func decorateBadgeLinks(app *domain.AppSummary, baseURL string) {
	if app.URLHash == "" {
		return
	}
	app.BadgeImageURL = baseURL + "/stats/" + app.URLHash + "/badge.svg"
	app.BadgeMarkdown = "![IBM Cloud Deployments](" + app.BadgeImageURL + ")"
	app.ButtonImageURL = baseURL + "/stats/" + app.URLHash + "/button.svg"
	app.ButtonLinkURL = "https://bluemix.net/deploy?repository=" + app.URL
	app.ButtonMarkdown = "[![Deploy to IBM Cloud](" + app.ButtonImageURL + ")](" + app.ButtonLinkURL + ")"
}
