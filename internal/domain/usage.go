package domain

import "encoding/json"

// ServiceUsage maps one service to its per-unit consumption counts.
type ServiceUsage struct {
	Key   string           `json:"key"`
	Value map[string]int64 `json:"value"`
}

// CompanyUsage is the per-company slice of the usage snapshot.
type CompanyUsage struct {
	CloudFoundry json.RawMessage `json:"cf,omitempty"`
	Kubernetes   json.RawMessage `json:"k8s,omitempty"`
	Services     json.RawMessage `json:"services,omitempty"`
	Usage        []ServiceUsage  `json:"usage,omitempty"`
	ServiceUnit  []ServiceUsage  `json:"serviceUnit,omitempty"`
}

// UsageSnapshot is the periodically rebuilt usage summary document. Sections
// the dashboard renders verbatim stay opaque JSON.
type UsageSnapshot struct {
	Users              json.RawMessage         `json:"users,omitempty"`
	UserGeo            []CategoryCount         `json:"userGeo,omitempty"`
	Chatbots           []CategoryCount         `json:"chatbot,omitempty"`
	Services           []CategoryCount         `json:"services,omitempty"`
	Usage              []ServiceUsage          `json:"usage,omitempty"`
	UsagePerService    []ServiceUsage          `json:"usagePerService,omitempty"`
	CloudFoundry       json.RawMessage         `json:"cloudfoundry,omitempty"`
	Kubernetes         json.RawMessage         `json:"kubernetes,omitempty"`
	PlatformTotals     json.RawMessage         `json:"servicesAllBluemix,omitempty"`
	CFPlatform         json.RawMessage         `json:"cfBluemix,omitempty"`
	KubernetesPlatform json.RawMessage         `json:"kubernetesBluemix,omitempty"`
	Companies          map[string]CompanyUsage `json:"companyData,omitempty"`
}
