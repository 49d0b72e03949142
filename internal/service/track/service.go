package track

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/repository"
	"github.com/deploytrack/deploytrack/internal/ws"
	"github.com/deploytrack/deploytrack/pkg/config"
)

const analyticsTimeout = 5 * time.Second

// eventFeedTopic is the hub topic live dashboard clients subscribe to.
const eventFeedTopic = "events"

// AnalyticsEmitter forwards normalized events to the analytics backend.
type AnalyticsEmitter interface {
	Emit(ctx context.Context, event domain.TelemetryEvent) error
}

// Service validates, normalizes and stores inbound telemetry events.
type Service struct {
	events    repository.EventRepository
	analytics AnalyticsEmitter
	hub       *ws.Hub
	logger    *slog.Logger
	cfg       config.Config
	now       func() time.Time
	newID     func() string
}

// New constructs the ingestion service.
func New(events repository.EventRepository, analytics AnalyticsEmitter, hub *ws.Hub, logger *slog.Logger, cfg config.Config) *Service {
	if logger != nil {
		logger = logger.With("component", "track")
	}
	return &Service{
		events:    events,
		analytics: analytics,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// requiredFields is the dry-run validation set, in reporting order.
var requiredFields = []string{
	"application_id",
	"application_name",
	"repository_url",
	"runtime",
	"space_id",
	"config",
}

// Missing returns the names of required fields absent from the payload.
// An empty result means the payload meets the ingestion contract.
func Missing(raw RawEvent) []string {
	missing := make([]string, 0)
	for _, field := range requiredFields {
		present := false
		switch field {
		case "application_id":
			present = raw.ApplicationID != ""
		case "application_name":
			present = raw.ApplicationName != ""
		case "repository_url":
			present = raw.RepositoryURL != ""
		case "runtime":
			present = raw.Runtime != ""
		case "space_id":
			present = raw.SpaceID != ""
		case "config":
			present = raw.hasConfig()
		}
		if !present {
			missing = append(missing, field)
		}
	}
	return missing
}

// Normalize reshapes a sparse raw payload into the canonical stored event.
// Absent optional fields stay zero-valued; they are never defaulted to
// placeholders that would pollute aggregation.
func (s *Service) Normalize(raw RawEvent) domain.TelemetryEvent {
	event := domain.TelemetryEvent{
		ID:                 s.newID(),
		ReceivedAt:         s.now().UTC(),
		DateSent:           raw.DateSent,
		CodeVersion:        raw.CodeVersion,
		ApplicationName:    raw.ApplicationName,
		ApplicationID:      raw.ApplicationID,
		ApplicationVersion: raw.ApplicationVersion,
		InstanceIndex:      raw.InstanceIndex,
		SpaceID:            raw.SpaceID,
		Runtime:            raw.Runtime,
		ApplicationURIs:    []string(raw.ApplicationURIs),
		BoundServices:      raw.BoundServices,
		Provider:           raw.Provider,
		ChatbotName:        raw.BotName,
		ServiceID:          raw.ServiceID,
		ClusterID:          raw.ClusterID,
		CustomerID:         raw.CustomerID,
	}
	if raw.RepositoryURL != "" {
		event.RepositoryURL = raw.RepositoryURL
		event.RepositoryURLHash = domain.HashRepositoryURL(event.RepositoryURL)
	}
	if raw.hasConfig() {
		event.Config = raw.Config
		s.resolveConfigRepository(raw.Config, &event)
	}
	event.BoundVCAPServices = map[string]json.RawMessage{}
	event.BoundServiceLabels = []string{}
	if len(raw.BoundVCAPServices) > 0 {
		event.BoundVCAPServices = raw.BoundVCAPServices
		labels := make([]string, 0, len(raw.BoundVCAPServices))
		for label := range raw.BoundVCAPServices {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		event.BoundServiceLabels = labels
	}
	return event
}

// resolveConfigRepository synthesizes the repository URL from
// config.repository_id when present: values containing a path separator are
// full URLs, bare names expand against the organization namespace. A config
// mapping that does not parse is logged and skipped; the rest of the event
// survives.
func (s *Service) resolveConfigRepository(rawConfig json.RawMessage, event *domain.TelemetryEvent) {
	var cfg struct {
		RepositoryID string `json:"repository_id"`
	}
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		if s.logger != nil {
			s.logger.Warn("malformed config in tracked event", "error", err)
		}
		return
	}
	if cfg.RepositoryID == "" {
		return
	}
	if strings.Contains(cfg.RepositoryID, "/") {
		event.RepositoryURL = cfg.RepositoryID
	} else {
		event.RepositoryURL = s.cfg.OrgRepoPrefix + cfg.RepositoryID
	}
	event.RepositoryURLHash = domain.HashRepositoryURL(event.RepositoryURL)
}

// Track normalizes and stores one event, fires the analytics emission and
// broadcasts the event to live feed subscribers. The stored event is
// returned to the caller.
func (s *Service) Track(ctx context.Context, raw RawEvent) (*domain.TelemetryEvent, error) {
	event := s.Normalize(raw)

	if s.analytics != nil {
		go s.emitAnalytics(event)
	}

	if err := s.events.InsertEvent(ctx, &event); err != nil {
		return nil, err
	}
	s.broadcast(event)
	return &event, nil
}

func (s *Service) emitAnalytics(event domain.TelemetryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), analyticsTimeout)
	defer cancel()
	if err := s.analytics.Emit(ctx, event); err != nil {
		if s.logger != nil {
			s.logger.Warn("analytics emission failed", "event_id", event.ID, "error", err)
		}
	}
}

func (s *Service) broadcast(event domain.TelemetryEvent) {
	if s.hub == nil {
		return
	}
	payload, err := MarshalFeedEvent(event)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to marshal feed event", "error", err)
		}
		return
	}
	s.hub.Broadcast(eventFeedTopic, payload)
}

// MarshalFeedEvent encodes an event for live feed clients. Identifying
// details stay out of the feed; only aggregate-relevant fields are exposed.
func MarshalFeedEvent(event domain.TelemetryEvent) ([]byte, error) {
	payload := map[string]any{
		"id":                  event.ID,
		"received_at":         event.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"repository_url_hash": event.RepositoryURLHash,
		"runtime":             event.Runtime,
		"provider":            event.Provider,
		"bound_services":      event.BoundServiceLabels,
	}
	return json.Marshal(payload)
}
