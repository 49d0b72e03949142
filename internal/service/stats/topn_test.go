package stats

import (
	"testing"

	"github.com/deploytrack/deploytrack/internal/domain"
)

func TestTopRepoSharesComputesRoundedPercentages(t *testing.T) {
	apps := []*domain.AppSummary{
		{URL: "https://github.com/acme/one", Count: 50},
		{URL: "https://github.com/acme/two", Count: 30},
		{URL: "https://github.com/acme/three", Count: 10},
		{URL: "https://github.com/acme/four", Count: 5},
		{URL: "https://github.com/acme/five", Count: 5},
	}

	shares := TopRepoShares(apps, 100, 5)
	want := []float64{50, 30, 10, 5, 5}
	if len(shares) != len(want) {
		t.Fatalf("expected %d shares, got %d", len(want), len(shares))
	}
	for i, share := range shares {
		if share.Value != want[i] {
			t.Fatalf("share %d = %v, want %v", i, share.Value, want[i])
		}
	}
	if shares[0].Key != "acme/one" {
		t.Fatalf("expected display key acme/one, got %q", shares[0].Key)
	}
}

func TestTopRepoSharesReturnsAllWhenFewerThanK(t *testing.T) {
	apps := []*domain.AppSummary{
		{URL: "https://github.com/acme/one", Count: 2},
		{URL: "https://github.com/acme/two", Count: 1},
	}

	shares := TopRepoShares(apps, 3, 5)
	if len(shares) != 2 {
		t.Fatalf("expected all available apps, got %d", len(shares))
	}
}

func TestTopRepoSharesRoundsToTwoDecimals(t *testing.T) {
	apps := []*domain.AppSummary{{URL: "https://github.com/acme/one", Count: 1}}
	shares := TopRepoShares(apps, 3, 1)
	if shares[0].Value != 33.33 {
		t.Fatalf("expected 33.33, got %v", shares[0].Value)
	}
}

func TestTopRepoSharesZeroTotal(t *testing.T) {
	apps := []*domain.AppSummary{{URL: "https://github.com/acme/one", Count: 0}}
	shares := TopRepoShares(apps, 0, 1)
	if shares[0].Value != 0 {
		t.Fatalf("expected zero share for zero total, got %v", shares[0].Value)
	}
}

func TestRepoDisplayKey(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/app":     "acme/app",
		"https://github.com/acme/app.git": "acme/app",
		"plain-name":                      "plain-name",
	}
	for in, want := range cases {
		if got := repoDisplayKey(in); got != want {
			t.Fatalf("repoDisplayKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSortAppsByCountIsStable(t *testing.T) {
	apps := []*domain.AppSummary{
		{URL: "first", Count: 5},
		{URL: "second", Count: 5},
		{URL: "third", Count: 9},
	}
	SortAppsByCount(apps)
	if apps[0].URL != "third" || apps[1].URL != "first" || apps[2].URL != "second" {
		t.Fatalf("unexpected order: %q %q %q", apps[0].URL, apps[1].URL, apps[2].URL)
	}
}
