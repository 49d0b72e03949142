package stats

import (
	"math"
	"sort"
	"strings"

	"github.com/deploytrack/deploytrack/internal/domain"
)

// SortAppsByCount orders accumulators by count descending. The sort is
// stable, so equal counts keep their first-seen order.
func SortAppsByCount(apps []*domain.AppSummary) {
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].Count > apps[j].Count
	})
}

// SortItems orders category entries by value descending, stable.
func SortItems(items []domain.CategoryCount) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Value > items[j].Value
	})
}

// TopRepoShares selects the first k apps (already sorted descending) and
// computes each one's percentage of total, rounded half-up to two decimals.
// When fewer than k apps exist, all available apps are returned.
func TopRepoShares(apps []*domain.AppSummary, total int64, k int) []domain.Share {
	if k > len(apps) {
		k = len(apps)
	}
	shares := make([]domain.Share, 0, k)
	for i := 0; i < k; i++ {
		shares = append(shares, domain.Share{
			Key:   repoDisplayKey(apps[i].URL),
			Value: roundShare(apps[i].Count, total),
		})
	}
	return shares
}

// ListShares converts category entries into percentage shares of total,
// keeping the input order.
func ListShares(items []domain.CategoryCount, total int64) []domain.Share {
	shares := make([]domain.Share, 0, len(items))
	for _, item := range items {
		shares = append(shares, domain.Share{Key: item.Key, Value: roundShare(item.Value, total)})
	}
	return shares
}

// SumCounts totals category entry values.
func SumCounts(items []domain.CategoryCount) int64 {
	var total int64
	for _, item := range items {
		total += item.Value
	}
	return total
}

func roundShare(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

// repoDisplayKey shortens a repository URL to "owner/name": the segment
// after the last ".com/", truncated at the first dot.
func repoDisplayKey(url string) string {
	parts := strings.Split(url, ".com/")
	suffix := parts[len(parts)-1]
	return strings.SplitN(suffix, ".", 2)[0]
}
