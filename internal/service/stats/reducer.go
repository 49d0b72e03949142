package stats

import (
	"net/url"

	"github.com/deploytrack/deploytrack/internal/domain"
)

// summarySet resolves accumulators by repository identity while preserving
// first-seen order, so equal counts keep a stable downstream ordering.
type summarySet struct {
	order []string
	index map[string]*domain.AppSummary
}

func newSummarySet() *summarySet {
	return &summarySet{index: make(map[string]*domain.AppSummary)}
}

func (s *summarySet) get(identity string) *domain.AppSummary {
	if app, ok := s.index[identity]; ok {
		return app
	}
	app := &domain.AppSummary{
		URL:     identity,
		IsURL:   isAbsoluteURL(identity),
		Deploys: make(domain.DeployHistogram),
	}
	s.index[identity] = app
	s.order = append(s.order, identity)
	return app
}

func (s *summarySet) list() []*domain.AppSummary {
	apps := make([]*domain.AppSummary, 0, len(s.order))
	for _, identity := range s.order {
		apps = append(apps, s.index[identity])
	}
	return apps
}

// ReduceRepoRows folds [repository_url, year, month] grouped rows into one
// accumulator per repository. Folding is strictly additive, so duplicate rows
// simply add again. Every non-empty identity gets a derived URL hash.
func ReduceRepoRows(rows []domain.GroupedCount) []*domain.AppSummary {
	set := newSummarySet()
	for _, row := range rows {
		if len(row.Key) < 3 {
			continue
		}
		identity, year, month := row.Key[0], row.Key[1], row.Key[2]
		app := set.get(identity)
		if app.URLHash == "" && identity != "" {
			app.URLHash = domain.HashRepositoryURL(identity)
		}
		app.Deploys.Add(year, month, row.Count)
		app.Count += row.Count
	}
	return set.list()
}

// ReduceRepoHashRows folds [url_hash, repository_url, year, month] rows from
// the per-repository view. The externally supplied hash is adopted as-is.
func ReduceRepoHashRows(rows []domain.GroupedCount) []*domain.AppSummary {
	set := newSummarySet()
	for _, row := range rows {
		if len(row.Key) < 4 {
			continue
		}
		hash, identity, year, month := row.Key[0], row.Key[1], row.Key[2], row.Key[3]
		app := set.get(identity)
		if app.URLHash == "" && hash != "" {
			app.URLHash = hash
		}
		app.Deploys.Add(year, month, row.Count)
		app.Count += row.Count
	}
	return set.list()
}

// isAbsoluteURL reports whether s parses as an absolute http or https URL.
func isAbsoluteURL(s string) bool {
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
