package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldType enumerates the configurable field kinds.
type FieldType string

const (
	TypeCheckbox    FieldType = "checkbox"
	TypeText        FieldType = "text"
	TypeTextarea    FieldType = "textarea"
	TypeMultiInput  FieldType = "multi_input"
	TypeURL         FieldType = "url"
	TypeSelect      FieldType = "select"
	TypeMultiSelect FieldType = "multi_select"
	TypeGroup       FieldType = "group"
)

// OptionsSourceIntegrations marks a multi_select whose options come from
// the integrations catalog instead of a static list.
const OptionsSourceIntegrations = "integrations"

// Field describes one configurable checklist field. Groups carry one
// level of sub-fields; groups are never nested inside groups.
type Field struct {
	ID            string    `json:"id" yaml:"id"`
	Label         string    `json:"label" yaml:"label"`
	Type          FieldType `json:"type" yaml:"type"`
	Optional      bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
	Required      bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Fields        []Field   `json:"fields,omitempty" yaml:"fields,omitempty"`
	OptionsSource string    `json:"optionsSource,omitempty" yaml:"optionsSource,omitempty"`
	Options       []string  `json:"options,omitempty" yaml:"options,omitempty"`
	HasStatus     bool      `json:"hasStatus,omitempty" yaml:"hasStatus,omitempty"`
	HasVersion    bool      `json:"hasVersion,omitempty" yaml:"hasVersion,omitempty"`
}

// Mandatory reports whether the field counts toward progress.
// required wins over optional; a field with neither set is mandatory.
func (f Field) Mandatory() bool {
	if f.Required {
		return true
	}
	return !f.Optional
}

// IntegrationBacked reports whether selections come from the catalog.
func (f Field) IntegrationBacked() bool {
	return f.Type == TypeMultiSelect && f.OptionsSource == OptionsSourceIntegrations
}

// Config models the checklist schema document: the sales and launch
// field forests plus a document version for admin-side migrations.
type Config struct {
	Version int     `json:"version" yaml:"version"`
	Sales   []Field `json:"sales" yaml:"sales"`
	Launch  []Field `json:"launch" yaml:"launch"`
}

// Validate ensures the schema document meets required structure.
// Stored project values are never validated against it; the evaluator
// tolerates drift between schema and data.
func (c *Config) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("schema.version is required")
	}
	if c.Sales == nil {
		return fmt.Errorf("schema.sales is required")
	}
	if c.Launch == nil {
		return fmt.Errorf("schema.launch is required")
	}
	if err := validateFields("sales", c.Sales, false); err != nil {
		return err
	}
	return validateFields("launch", c.Launch, false)
}

func validateFields(path string, fields []Field, inGroup bool) error {
	seen := map[string]bool{}
	for _, f := range fields {
		if f.ID == "" {
			return fmt.Errorf("%s: field with empty id", path)
		}
		if seen[f.ID] {
			return fmt.Errorf("%s: duplicate field id %s", path, f.ID)
		}
		seen[f.ID] = true
		switch f.Type {
		case TypeCheckbox, TypeText, TypeTextarea, TypeMultiInput, TypeURL, TypeSelect, TypeMultiSelect:
		case TypeGroup:
			if inGroup {
				return fmt.Errorf("%s.%s: groups cannot be nested", path, f.ID)
			}
			if err := validateFields(path+"."+f.ID, f.Fields, true); err != nil {
				return err
			}
		case "":
			return fmt.Errorf("%s.%s: type is required", path, f.ID)
		default:
			return fmt.Errorf("%s.%s: unknown type %s", path, f.ID, f.Type)
		}
		if f.OptionsSource == OptionsSourceIntegrations && f.Type != TypeMultiSelect {
			return fmt.Errorf("%s.%s: optionsSource integrations requires type multi_select", path, f.ID)
		}
	}
	return nil
}

// FromYAML parses and validates a schema document from YAML (JSON is
// valid YAML, so JSON documents parse through here too).
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid schema yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromJSON parses and validates a schema document from JSON.
func FromJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid schema json: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads a schema document from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if json.Valid(data) {
		return FromJSON(data)
	}
	return FromYAML(data)
}

// Default returns the built-in checklist schema.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

const defaultTemplate = `version: 1

sales:
  - id: contract_signed
    label: Contract signed
    type: checkbox
  - id: contact_person
    label: Client contact person
    type: text
  - id: store_accounts
    label: Store accounts
    type: group
    fields:
      - id: apple_account
        label: Apple developer account
        type: text
      - id: google_account
        label: Google Play account
        type: text
      - id: transfer_notes
        label: Transfer notes
        type: textarea
        optional: true
  - id: sold_features
    label: Sold features
    type: multi_input
  - id: design_delivered
    label: Design delivered
    type: checkbox
    optional: true
  - id: figma_url
    label: Figma link
    type: url

launch:
  - id: app_name
    label: App name
    type: text
  - id: bundle_id
    label: Bundle identifier
    type: text
  - id: integrations
    label: Integrations
    type: group
    fields:
      - id: selected
        label: Selected integrations
        type: multi_select
        optionsSource: integrations
      - id: credentials
        label: Credentials received
        type: multi_input
        hasStatus: true
        hasVersion: true
  - id: features
    label: Feature list
    type: multi_input
    hasStatus: true
    hasVersion: true
  - id: change_requests
    label: Change requests
    type: multi_input
    hasVersion: true
    optional: true
  - id: release_track
    label: Release track
    type: select
    options: [internal, beta, production]
  - id: launch_notes
    label: Launch notes
    type: textarea
    hasVersion: true
    optional: true
`
