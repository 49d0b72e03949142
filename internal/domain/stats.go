package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// GroupedCount is one row of a grouping query over the event store: an
// ordered composite key plus the number of distinct applications matching it.
type GroupedCount struct {
	Key   []string
	Count int64
}

// DeployHistogram maps year -> month -> deployment count. Keys are the
// four and two digit strings produced by the grouping queries.
type DeployHistogram map[string]map[string]int64

// Add folds n deployments into the year/month bucket.
func (h DeployHistogram) Add(year, month string, n int64) {
	months, ok := h[year]
	if !ok {
		months = make(map[string]int64)
		h[year] = months
	}
	months[month] += n
}

// Total sums every leaf bucket.
func (h DeployHistogram) Total() int64 {
	var total int64
	for _, months := range h {
		for _, n := range months {
			total += n
		}
	}
	return total
}

// MarshalJSON renders the histogram with years and months in ascending order
// so cached payloads stay byte-stable.
func (h DeployHistogram) MarshalJSON() ([]byte, error) {
	years := make([]string, 0, len(h))
	for year := range h {
		years = append(years, year)
	}
	sort.Strings(years)

	buf := []byte{'{'}
	for i, year := range years {
		if i > 0 {
			buf = append(buf, ',')
		}
		months := make([]string, 0, len(h[year]))
		for month := range h[year] {
			months = append(months, month)
		}
		sort.Strings(months)
		key, _ := json.Marshal(year)
		buf = append(buf, key...)
		buf = append(buf, ':', '{')
		for j, month := range months {
			if j > 0 {
				buf = append(buf, ',')
			}
			mkey, _ := json.Marshal(month)
			val, _ := json.Marshal(h[year][month])
			buf = append(buf, mkey...)
			buf = append(buf, ':')
			buf = append(buf, val...)
		}
		buf = append(buf, '}')
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON restores a histogram from its serialized form.
func (h *DeployHistogram) UnmarshalJSON(data []byte) error {
	raw := make(map[string]map[string]int64)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = raw
	return nil
}

// GithubStats carries best-effort popularity metrics for a repository.
type GithubStats struct {
	FullName string `json:"full_name,omitempty"`
	Stars    int64  `json:"stars"`
	Forks    int64  `json:"forks"`
	Watchers int64  `json:"watchers,omitempty"`
}

// AppSummary accumulates deployment counts for one repository identity.
type AppSummary struct {
	URL            string          `json:"url"`
	URLHash        string          `json:"url_hash,omitempty"`
	IsURL          bool            `json:"is_url"`
	Count          int64           `json:"count"`
	Deploys        DeployHistogram `json:"deploys"`
	GithubStats    *GithubStats    `json:"github_stats,omitempty"`
	BadgeImageURL  string          `json:"badge_image_url,omitempty"`
	BadgeMarkdown  string          `json:"badge_markdown,omitempty"`
	ButtonImageURL string          `json:"button_image_url,omitempty"`
	ButtonLinkURL  string          `json:"button_link_url,omitempty"`
	ButtonMarkdown string          `json:"button_markdown,omitempty"`
}

// CategoryCount is a tally entry keyed by display label.
type CategoryCount struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// Share is a tally entry whose value is a percentage of an aggregate total,
// rounded to two decimal places.
type Share struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// StatsOverview is the finished global rollup handed to rendering.
type StatsOverview struct {
	Apps        []*AppSummary   `json:"apps"`
	TopRepos    []Share         `json:"top_repos"`
	Services    []CategoryCount `json:"services"`
	Runtimes    []CategoryCount `json:"runtimes"`
	Languages   []CategoryCount `json:"languages"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// RepoStats is the per-repository rollup addressed by URL hash.
type RepoStats struct {
	Apps []*AppSummary `json:"apps"`
}
