package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/repository"
	"github.com/deploytrack/deploytrack/internal/service/stats"
)

// ErrNoData signals the usage snapshot is missing or holds nothing for the
// requested view.
var ErrNoData = errors.New("usage: no data for this view")

var whitespace = regexp.MustCompile(`\s+`)

// Service reads views out of the stored usage snapshot document. The
// snapshot is rebuilt out of band; this service only slices it.
type Service struct {
	snapshots repository.UsageRepository
	logger    *slog.Logger
}

// New constructs the usage service.
func New(snapshots repository.UsageRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "usage")
	}
	return &Service{snapshots: snapshots, logger: logger}
}

// UsersView is the user-population slice of the snapshot.
type UsersView struct {
	Users   json.RawMessage `json:"users,omitempty"`
	UserGeo []domain.Share  `json:"userGeo"`
}

// ChatbotView lists chatbot deployments as percentage shares.
type ChatbotView struct {
	Chatbots []domain.Share `json:"chatbot"`
}

// PlatformView is the platform-wide consumption slice.
type PlatformView struct {
	Totals       json.RawMessage `json:"servicesAllBluemix,omitempty"`
	CloudFoundry json.RawMessage `json:"cfBluemix,omitempty"`
	Kubernetes   json.RawMessage `json:"kubernetesBluemix,omitempty"`
}

// GraphsView feeds the per-service usage graphs. Each usage entry carries a
// whitespace-free slug used to address the detail view.
type GraphsView struct {
	Services     []domain.CategoryCount `json:"services"`
	Usage        []SluggedUsage         `json:"usage"`
	CloudFoundry json.RawMessage        `json:"cloudfoundry,omitempty"`
	Kubernetes   json.RawMessage        `json:"kubernetes,omitempty"`
}

// SluggedUsage is a usage entry plus its addressable slug.
type SluggedUsage struct {
	domain.ServiceUsage
	Slug string `json:"key2"`
}

// ServiceDetail is the per-unit breakdown for one service.
type ServiceDetail struct {
	Service string                 `json:"service"`
	Units   []domain.CategoryCount `json:"units"`
}

// CompanyView is one company's consumption slice.
type CompanyView struct {
	Company      string          `json:"company"`
	CloudFoundry json.RawMessage `json:"cloudfoundry,omitempty"`
	Kubernetes   json.RawMessage `json:"kubernetes,omitempty"`
	Services     json.RawMessage `json:"services,omitempty"`
	Usage        []SluggedUsage  `json:"usage"`
}

// CompanyServiceDetail is the per-unit breakdown of one service for one
// company.
type CompanyServiceDetail struct {
	Company string                 `json:"company"`
	Service string                 `json:"service"`
	Units   []domain.CategoryCount `json:"units"`
}

// Users returns the user-population view with geo entries as shares of the
// total.
func (s *Service) Users(ctx context.Context) (*UsersView, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &UsersView{
		Users:   snap.Users,
		UserGeo: stats.ListShares(snap.UserGeo, stats.SumCounts(snap.UserGeo)),
	}, nil
}

// Chatbots returns chatbot deployment counts as shares of the total.
func (s *Service) Chatbots(ctx context.Context) (*ChatbotView, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &ChatbotView{
		Chatbots: stats.ListShares(snap.Chatbots, stats.SumCounts(snap.Chatbots)),
	}, nil
}

// Platform returns the platform-wide consumption totals.
func (s *Service) Platform(ctx context.Context) (*PlatformView, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &PlatformView{
		Totals:       snap.PlatformTotals,
		CloudFoundry: snap.CFPlatform,
		Kubernetes:   snap.KubernetesPlatform,
	}, nil
}

// Graphs returns the usage-graph view with slugged usage entries.
func (s *Service) Graphs(ctx context.Context) (*GraphsView, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &GraphsView{
		Services:     snap.Services,
		Usage:        slugUsage(snap.Usage),
		CloudFoundry: snap.CloudFoundry,
		Kubernetes:   snap.Kubernetes,
	}, nil
}

// Service returns the per-unit breakdown for the service whose slug
// (service key with whitespace stripped) matches key.
func (s *Service) Service(ctx context.Context, key string) (*ServiceDetail, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, svc := range snap.UsagePerService {
		if Slug(svc.Key) != key {
			continue
		}
		return &ServiceDetail{Service: svc.Key, Units: unitCounts(svc.Value)}, nil
	}
	return nil, ErrNoData
}

// Company returns the consumption slice for the company whose slug matches
// key. Matching is case-insensitive to mirror how company links are shared.
func (s *Service) Company(ctx context.Context, key string) (*CompanyView, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	name, company, ok := findCompany(snap, key)
	if !ok {
		return nil, ErrNoData
	}
	return &CompanyView{
		Company:      name,
		CloudFoundry: company.CloudFoundry,
		Kubernetes:   company.Kubernetes,
		Services:     company.Services,
		Usage:        slugUsage(company.Usage),
	}, nil
}

// CompanyService returns the per-unit breakdown of one service for one
// company. Both segments are matched by slug.
func (s *Service) CompanyService(ctx context.Context, key, service string) (*CompanyServiceDetail, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	name, company, ok := findCompany(snap, key)
	if !ok {
		return nil, ErrNoData
	}
	for _, svc := range company.ServiceUnit {
		if Slug(svc.Key) != service {
			continue
		}
		return &CompanyServiceDetail{
			Company: name,
			Service: svc.Key,
			Units:   unitCounts(svc.Value),
		}, nil
	}
	return nil, ErrNoData
}

// Store replaces the usage snapshot document.
func (s *Service) Store(ctx context.Context, snapshot *domain.UsageSnapshot) error {
	if err := s.snapshots.UpsertUsageSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("store usage snapshot: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context) (*domain.UsageSnapshot, error) {
	snap, err := s.snapshots.GetUsageSnapshot(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("load usage snapshot: %w", err)
	}
	return snap, nil
}

// Slug strips all whitespace from a display key, producing the identifier
// used in detail-view paths.
func Slug(key string) string {
	return whitespace.ReplaceAllString(key, "")
}

func slugUsage(entries []domain.ServiceUsage) []SluggedUsage {
	out := make([]SluggedUsage, 0, len(entries))
	for _, entry := range entries {
		out = append(out, SluggedUsage{ServiceUsage: entry, Slug: Slug(entry.Key)})
	}
	return out
}

// unitCounts flattens a unit→count map into sorted entries so the response
// is deterministic.
func unitCounts(units map[string]int64) []domain.CategoryCount {
	keys := make([]string, 0, len(units))
	for key := range units {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]domain.CategoryCount, 0, len(keys))
	for _, key := range keys {
		out = append(out, domain.CategoryCount{Key: key, Value: units[key]})
	}
	return out
}

func findCompany(snap *domain.UsageSnapshot, key string) (string, domain.CompanyUsage, bool) {
	target := strings.ToLower(Slug(key))
	names := make([]string, 0, len(snap.Companies))
	for name := range snap.Companies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.ToLower(Slug(name)) == target {
			return name, snap.Companies[name], true
		}
	}
	return "", domain.CompanyUsage{}, false
}
