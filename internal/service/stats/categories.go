package stats

import (
	"regexp"
	"sort"
	"strings"

	"github.com/deploytrack/deploytrack/internal/domain"
)

// Facet kinds as emitted by the grouped category view.
const (
	KindRuntime  = "runtimes"
	KindService  = "services"
	KindLanguage = "language"
)

var wordStart = regexp.MustCompile(`\b\w`)

// TallyFacets folds [item, kind] grouped rows into per-kind tallies. Raw
// labels are lowercased with hyphens collapsed to spaces before tallying, so
// "Liberty-for-Java" and "liberty for java" land in the same bucket.
func TallyFacets(rows []domain.GroupedCount) map[string]map[string]int64 {
	tallies := make(map[string]map[string]int64)
	for _, row := range rows {
		if len(row.Key) < 2 {
			continue
		}
		item, kind := normalizeRawLabel(row.Key[0]), row.Key[1]
		if item == "" {
			continue
		}
		tally, ok := tallies[kind]
		if !ok {
			tally = make(map[string]int64)
			tallies[kind] = tally
		}
		tally[item] += row.Count
	}
	return tallies
}

// NormalizeCategories turns a raw tally into display entries. When active is
// non-nil, entries whose raw key is absent from it are dropped as deprecated.
// Output is keyed by display label and not yet sorted by count.
func NormalizeCategories(tally map[string]int64, active map[string]bool) []domain.CategoryCount {
	keys := make([]string, 0, len(tally))
	for key := range tally {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]domain.CategoryCount, 0, len(keys))
	for _, key := range keys {
		if active != nil && !active[key] {
			continue
		}
		out = append(out, domain.CategoryCount{Key: displayLabel(key), Value: tally[key]})
	}
	return out
}

func normalizeRawLabel(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", " ")
}

// displayLabel upper-cases the first character of every word.
func displayLabel(s string) string {
	return wordStart.ReplaceAllStringFunc(s, strings.ToUpper)
}
