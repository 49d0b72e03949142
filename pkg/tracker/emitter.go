// Package tracker is the client SDK applications embed to report a
// deployment to the tracking service.
package tracker

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
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
)

// ErrInvalidPayload indicates the service rejected the event because
// required fields were missing.
var ErrInvalidPayload = errors.New("tracker: invalid event payload")

// ErrUnavailable indicates the service could not store the event.
var ErrUnavailable = errors.New("tracker: service unavailable")

// Event is one deployment report. RepositoryURL, ApplicationID,
// ApplicationName, Runtime, SpaceID and Config are required by the service;
// the rest is optional context.
type Event struct {
	DateSent           string                     `json:"date_sent,omitempty"`
	CodeVersion        string                     `json:"code_version,omitempty"`
	RepositoryURL      string                     `json:"repository_url,omitempty"`
	ApplicationName    string                     `json:"application_name,omitempty"`
	ApplicationID      string                     `json:"application_id,omitempty"`
	ApplicationVersion string                     `json:"application_version,omitempty"`
	InstanceIndex      *int                       `json:"instance_index,omitempty"`
	SpaceID            string                     `json:"space_id,omitempty"`
	ApplicationURIs    []string                   `json:"application_uris,omitempty"`
	Runtime            string                     `json:"runtime,omitempty"`
	BoundVCAPServices  map[string]json.RawMessage `json:"bound_vcap_services,omitempty"`
	BoundServices      json.RawMessage            `json:"bound_services,omitempty"`
	Provider           string                     `json:"provider,omitempty"`
	Config             json.RawMessage            `json:"config,omitempty"`
	BotName            string                     `json:"bot_name,omitempty"`
	ServiceID          string                     `json:"service_id,omitempty"`
	ClusterID          string                     `json:"clusterid,omitempty"`
	CustomerID         string                     `json:"customerid,omitempty"`
}

// Emitter posts deployment events to the tracking service.
type Emitter struct {
	baseURL string
	client  *http.Client
}

// NewEmitter creates an emitter for the given service base URL.
func NewEmitter(baseURL string, client *http.Client) (*Emitter, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("tracker: base url required")
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Emitter{baseURL: trimmed, client: client}, nil
}

// Emit reports one deployment event.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	return e.post(ctx, event, false)
}

// Validate dry-runs the event against the service's required-field
// contract without storing it. A nil error means the event would be
// accepted.
func (e *Emitter) Validate(ctx context.Context, event Event) error {
	return e.post(ctx, event, true)
}

func (e *Emitter) post(ctx context.Context, event Event, dryRun bool) error {
	if e == nil {
		return errors.New("tracker: emitter not initialised")
	}
	payload := struct {
		Event
		Test bool `json:"test,omitempty"`
	}{Event: event, Test: dryRun}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tracker event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/track", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build tracker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send tracker request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrorBodySize)
	buf, _ := io.ReadAll(limited)

	if resp.StatusCode == http.StatusBadRequest {
		var rejection struct {
			Missing []string `json:"missing"`
		}
		if err := json.Unmarshal(buf, &rejection); err == nil && len(rejection.Missing) > 0 {
			return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(rejection.Missing, ", "))
		}
		return fmt.Errorf("%w: %s", ErrInvalidPayload, statusSummary(resp, buf))
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, statusSummary(resp, buf))
}

func statusSummary(resp *http.Response, body []byte) string {
	summary := strings.TrimSpace(string(body))
	if summary == "" {
		summary = resp.Status
	}
	return summary
}
