package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// CatalogSource reports the currently supported service identifiers. Tally
// entries absent from this set are treated as deprecated.
type CatalogSource interface {
	ActiveServices(ctx context.Context) (map[string]bool, error)
}

type fileCatalog struct {
	path string
}

// NewFileCatalog reads the active-service list from a JSON object file. The
// file is re-read on every call so edits take effect without a restart.
func NewFileCatalog(path string) CatalogSource {
	return fileCatalog{path: path}
}

func (c fileCatalog) ActiveServices(ctx context.Context) (map[string]bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read service catalog: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse service catalog: %w", err)
	}
	active := make(map[string]bool, len(entries))
	for key := range entries {
		active[key] = true
	}
	return active, nil
}
