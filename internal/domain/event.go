package domain

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TelemetryEvent is one stored deployment report. Optional fields that the
// client never sent stay zero-valued and are omitted from the stored document.
type TelemetryEvent struct {
	ID                 string
	ReceivedAt         time.Time
	DateSent           string
	CodeVersion        string
	RepositoryURL      string
	RepositoryURLHash  string
	ApplicationID      string
	ApplicationName    string
	ApplicationVersion string
	InstanceIndex      *int
	SpaceID            string
	Runtime            string
	ApplicationURIs    []string
	BoundServices      json.RawMessage
	BoundVCAPServices  map[string]json.RawMessage
	BoundServiceLabels []string
	Config             json.RawMessage
	Provider           string
	ChatbotName        string
	ServiceID          string
	ClusterID          string
	CustomerID         string
}

// HashRepositoryURL derives the opaque grouping key for a repository URL.
// The hash is not used for anything security sensitive.
func HashRepositoryURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
