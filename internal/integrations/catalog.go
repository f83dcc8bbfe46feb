package integrations

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one integrations-catalog entry. The catalog is admin-owned
// read-only input; this package never mutates it.
type Record struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Requirements []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// Catalog is the full integrations list.
type Catalog []Record

// Find returns the record for an id.
func (c Catalog) Find(id string) (Record, bool) {
	for _, r := range c {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Validate rejects catalogs with empty or duplicate ids.
func (c Catalog) Validate() error {
	seen := map[string]bool{}
	for _, r := range c {
		if r.ID == "" {
			return fmt.Errorf("integration with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate integration id %s", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// FromFile loads a catalog from a YAML or JSON file.
func FromFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("invalid catalog json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("invalid catalog yaml: %w", err)
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// SatisfiesRequirements reports whether every selected integration has
// all of its declared requirements checked off in status. Selections
// whose id is no longer in the catalog are skipped: entries can be
// deleted from the catalog after a project selected them, and a stale
// selection must not block completion. An integration that declares no
// requirements is satisfied by selection alone.
func SatisfiesRequirements(selected []string, status map[string]map[string]bool, catalog Catalog) bool {
	if len(selected) == 0 {
		return false
	}
	for _, id := range selected {
		rec, ok := catalog.Find(id)
		if !ok || len(rec.Requirements) == 0 {
			continue
		}
		checked := status[id]
		for _, req := range rec.Requirements {
			if !checked[req] {
				return false
			}
		}
	}
	return true
}
