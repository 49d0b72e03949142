package track

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deploytrack/deploytrack/internal/domain"
)

const maxErrorBodySize = 4096

// Analytics posts normalized events to the configured analytics backend.
// It implements AnalyticsEmitter.
type Analytics struct {
	url      string
	writeKey string
	client   *http.Client
}

// NewAnalytics creates the analytics emitter. An empty URL means analytics
// is disabled; callers get nil and should skip emission.
func NewAnalytics(url, writeKey string, client *http.Client) *Analytics {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: analyticsTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = analyticsTimeout
	}
	return &Analytics{
		url:      strings.TrimRight(trimmed, "/"),
		writeKey: strings.TrimSpace(writeKey),
		client:   client,
	}
}

// Emit sends one event. Failures are reported to the caller, who treats
// them as best-effort.
func (a *Analytics) Emit(ctx context.Context, event domain.TelemetryEvent) error {
	if a == nil {
		return errors.New("analytics emitter not configured")
	}
	body, err := json.Marshal(analyticsPayload(event))
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.writeKey != "" {
		req.SetBasicAuth(a.writeKey, "")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		limited := io.LimitReader(resp.Body, maxErrorBodySize)
		buf, _ := io.ReadAll(limited)
		summary := strings.TrimSpace(string(buf))
		if summary == "" {
			summary = resp.Status
		}
		return fmt.Errorf("analytics request failed: %s", summary)
	}
	return nil
}

func analyticsPayload(event domain.TelemetryEvent) map[string]any {
	return map[string]any{
		"event":     "deployment_tracked",
		"messageId": event.ID,
		"timestamp": event.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"properties": map[string]any{
			"repository_url_hash": event.RepositoryURLHash,
			"runtime":             event.Runtime,
			"provider":            event.Provider,
			"space_id":            event.SpaceID,
			"bound_services":      event.BoundServiceLabels,
			"chatbot_name":        event.ChatbotName,
			"service_id":          event.ServiceID,
			"cluster_id":          event.ClusterID,
			"customer_id":         event.CustomerID,
		},
	}
}
