package repository

import (
	"context"

	"github.com/deploytrack/deploytrack/internal/domain"
)

// EventRepository appends telemetry events and serves grouped range views
// over the recent window.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *domain.TelemetryEvent) error

	// GroupedDeploysByRepo returns [repository_url, year, month] rows where
	// the count is the number of distinct applications in that bucket.
	GroupedDeploysByRepo(ctx context.Context) ([]domain.GroupedCount, error)

	// GroupedDeploysByRepoHash returns [url_hash, repository_url, year, month]
	// rows restricted to one repository hash.
	GroupedDeploysByRepoHash(ctx context.Context, hash string) ([]domain.GroupedCount, error)

	// GroupedCategoryCounts returns [item, kind] rows over the runtime,
	// service and language facets, counting distinct applications.
	GroupedCategoryCounts(ctx context.Context) ([]domain.GroupedCount, error)

	// CountUniqueDeploys counts unique deployment rows for a repository hash.
	CountUniqueDeploys(ctx context.Context, hash string) (int64, error)

	ListRepositoryURLs(ctx context.Context) ([]string, error)
}

// UsageRepository serves the stored usage summary document.
type UsageRepository interface {
	GetUsageSnapshot(ctx context.Context) (*domain.UsageSnapshot, error)
	UpsertUsageSnapshot(ctx context.Context, snapshot *domain.UsageSnapshot) error
}
