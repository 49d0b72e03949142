package track

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StringList accepts either a JSON array of strings or a single scalar,
// which is coerced to a one-element list.
type StringList []string

// UnmarshalJSON implements the scalar-or-sequence coercion.
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single string
	if err := json.Unmarshal(trimmed, &single); err != nil {
		// Non-string scalar: keep its literal form.
		var value any
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		single = fmt.Sprint(value)
	}
	*l = StringList{single}
	return nil
}

// RawEvent is the untyped inbound payload: every field independently
// optional, shape controlled by the caller.
type RawEvent struct {
	Test               bool                       `json:"test"`
	DateSent           string                     `json:"date_sent"`
	CodeVersion        string                     `json:"code_version"`
	RepositoryURL      string                     `json:"repository_url"`
	ApplicationName    string                     `json:"application_name"`
	ApplicationID      string                     `json:"application_id"`
	ApplicationVersion string                     `json:"application_version"`
	InstanceIndex      *int                       `json:"instance_index"`
	SpaceID            string                     `json:"space_id"`
	ApplicationURIs    StringList                 `json:"application_uris"`
	Runtime            string                     `json:"runtime"`
	BoundVCAPServices  map[string]json.RawMessage `json:"bound_vcap_services"`
	BoundServices      json.RawMessage            `json:"bound_services"`
	Provider           string                     `json:"provider"`
	Config             json.RawMessage            `json:"config"`
	BotName            string                     `json:"bot_name"`
	ServiceID          string                     `json:"service_id"`
	ClusterID          string                     `json:"clusterid"`
	CustomerID         string                     `json:"customerid"`
}

// hasConfig reports whether the payload carried a non-null config mapping.
func (r RawEvent) hasConfig() bool {
	trimmed := bytes.TrimSpace(r.Config)
	return len(trimmed) > 0 && string(trimmed) != "null"
}

// RawEventFromForm builds a RawEvent from a form-encoded body. JSON-valued
// fields are accepted verbatim when they parse, otherwise treated as absent.
func RawEventFromForm(values url.Values) RawEvent {
	raw := RawEvent{
		DateSent:           values.Get("date_sent"),
		CodeVersion:        values.Get("code_version"),
		RepositoryURL:      values.Get("repository_url"),
		ApplicationName:    values.Get("application_name"),
		ApplicationID:      values.Get("application_id"),
		ApplicationVersion: values.Get("application_version"),
		SpaceID:            values.Get("space_id"),
		Runtime:            values.Get("runtime"),
		Provider:           values.Get("provider"),
		BotName:            values.Get("bot_name"),
		ServiceID:          values.Get("service_id"),
		ClusterID:          values.Get("clusterid"),
		CustomerID:         values.Get("customerid"),
	}
	if test, err := strconv.ParseBool(values.Get("test")); err == nil {
		raw.Test = test
	}
	if idx := strings.TrimSpace(values.Get("instance_index")); idx != "" {
		if parsed, err := strconv.Atoi(idx); err == nil {
			raw.InstanceIndex = &parsed
		}
	}
	if uris, ok := values["application_uris"]; ok {
		raw.ApplicationURIs = StringList(uris)
	}
	if cfg := values.Get("config"); json.Valid([]byte(cfg)) {
		raw.Config = json.RawMessage(cfg)
	}
	if bound := values.Get("bound_services"); json.Valid([]byte(bound)) {
		raw.BoundServices = json.RawMessage(bound)
	}
	if vcap := values.Get("bound_vcap_services"); vcap != "" {
		var services map[string]json.RawMessage
		if err := json.Unmarshal([]byte(vcap), &services); err == nil {
			raw.BoundVCAPServices = services
		}
	}
	return raw
}
