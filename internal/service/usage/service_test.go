package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/repository"
)

type fakeSnapshotRepo struct {
	snapshot *domain.UsageSnapshot
	err      error
	stored   *domain.UsageSnapshot
}

func (f *fakeSnapshotRepo) GetUsageSnapshot(context.Context) (*domain.UsageSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeSnapshotRepo) UpsertUsageSnapshot(_ context.Context, snapshot *domain.UsageSnapshot) error {
	f.stored = snapshot
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() *domain.UsageSnapshot {
	return &domain.UsageSnapshot{
		UserGeo: []domain.CategoryCount{
			{Key: "Germany", Value: 75},
			{Key: "Brazil", Value: 25},
		},
		Chatbots: []domain.CategoryCount{
			{Key: "support-bot", Value: 10},
		},
		Usage: []domain.ServiceUsage{
			{Key: "Watson Assistant", Value: map[string]int64{"calls": 100}},
		},
		UsagePerService: []domain.ServiceUsage{
			{Key: "Watson Assistant", Value: map[string]int64{"calls": 100, "workspaces": 3}},
		},
		Companies: map[string]domain.CompanyUsage{
			"Acme Corp": {
				Usage: []domain.ServiceUsage{
					{Key: "Cloud ant", Value: map[string]int64{"reads": 5}},
				},
				ServiceUnit: []domain.ServiceUsage{
					{Key: "Cloud ant", Value: map[string]int64{"reads": 5, "writes": 2}},
				},
			},
		},
	}
}

func TestUsersComputesGeoShares(t *testing.T) {
	svc := New(&fakeSnapshotRepo{snapshot: sampleSnapshot()}, testLogger())

	view, err := svc.Users(context.Background())
	if err != nil {
		t.Fatalf("Users returned error: %v", err)
	}
	if len(view.UserGeo) != 2 {
		t.Fatalf("expected 2 geo entries, got %d", len(view.UserGeo))
	}
	if view.UserGeo[0].Value != 75 || view.UserGeo[1].Value != 25 {
		t.Fatalf("unexpected shares: %v", view.UserGeo)
	}
}

func TestServiceMatchesBySlug(t *testing.T) {
	svc := New(&fakeSnapshotRepo{snapshot: sampleSnapshot()}, testLogger())

	detail, err := svc.Service(context.Background(), "WatsonAssistant")
	if err != nil {
		t.Fatalf("Service returned error: %v", err)
	}
	if detail.Service != "Watson Assistant" {
		t.Fatalf("expected display name preserved, got %q", detail.Service)
	}
	if len(detail.Units) != 2 {
		t.Fatalf("expected 2 unit entries, got %d", len(detail.Units))
	}
	if detail.Units[0].Key != "calls" || detail.Units[1].Key != "workspaces" {
		t.Fatalf("expected sorted units, got %v", detail.Units)
	}
}

func TestServiceUnknownSlug(t *testing.T) {
	svc := New(&fakeSnapshotRepo{snapshot: sampleSnapshot()}, testLogger())

	if _, err := svc.Service(context.Background(), "Nope"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCompanyMatchesCaseInsensitively(t *testing.T) {
	svc := New(&fakeSnapshotRepo{snapshot: sampleSnapshot()}, testLogger())

	view, err := svc.Company(context.Background(), "acmecorp")
	if err != nil {
		t.Fatalf("Company returned error: %v", err)
	}
	if view.Company != "Acme Corp" {
		t.Fatalf("expected display name preserved, got %q", view.Company)
	}
	if len(view.Usage) != 1 || view.Usage[0].Slug != "Cloudant" {
		t.Fatalf("expected slugged usage entries, got %v", view.Usage)
	}
}

func TestCompanyServiceDetail(t *testing.T) {
	svc := New(&fakeSnapshotRepo{snapshot: sampleSnapshot()}, testLogger())

	detail, err := svc.CompanyService(context.Background(), "AcmeCorp", "Cloudant")
	if err != nil {
		t.Fatalf("CompanyService returned error: %v", err)
	}
	if detail.Company != "Acme Corp" || detail.Service != "Cloud ant" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if len(detail.Units) != 2 {
		t.Fatalf("expected 2 unit entries, got %v", detail.Units)
	}
}

func TestMissingSnapshotIsNoData(t *testing.T) {
	svc := New(&fakeSnapshotRepo{err: repository.ErrNotFound}, testLogger())

	if _, err := svc.Users(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestStorePersistsSnapshot(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	svc := New(repo, testLogger())

	snapshot := sampleSnapshot()
	if err := svc.Store(context.Background(), snapshot); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if repo.stored != snapshot {
		t.Fatal("expected snapshot handed to repository")
	}
}
