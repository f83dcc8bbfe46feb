package checklist

import (
	"strings"

	"handover/internal/integrations"
	"handover/internal/schema"
)

// Context carries the side inputs completion rules need: which
// checklist's rules apply and the integrations catalog.
type Context struct {
	Kind    Kind
	Catalog integrations.Catalog
}

// IsComplete applies the type-specific completion rule for one
// flattened field. Malformed or missing values are incomplete, never
// an error: the schema evolves independently of stored documents.
func IsComplete(f schema.Flat, value any, meta FieldMeta, ctx Context) bool {
	if f.Field.Type != schema.TypeCheckbox {
		if value == nil || value == "" {
			return false
		}
	}
	switch f.Field.Type {
	case schema.TypeCheckbox:
		return value == true
	case schema.TypeMultiInput:
		items, ok := List(value)
		if !ok || len(items) == 0 {
			return false
		}
		// Sales only hands the list over; launch must fill every entry.
		if ctx.Kind != KindLaunch {
			return true
		}
		for _, it := range items {
			if strings.TrimSpace(EffectiveValue(it)) == "" {
				return false
			}
		}
		return true
	case schema.TypeMultiSelect:
		items, ok := List(value)
		if !ok || len(items) == 0 {
			return false
		}
		if f.Field.IntegrationBacked() {
			return integrations.SatisfiesRequirements(StringList(value), meta.RequirementStatus, ctx.Catalog)
		}
		return true
	case schema.TypeGroup:
		// Groups are never leaves; their sub-fields are evaluated
		// through their own flattened entries.
		return false
	default:
		return nonBlank(value)
	}
}

// nonBlank implements the default text/textarea/url/select rule: the
// trimmed string representation must be non-empty. Versioned text
// fields store a list of tagged entries; any entry with a non-blank
// effective value completes the field.
func nonBlank(value any) bool {
	if items, ok := List(value); ok {
		for _, it := range items {
			if strings.TrimSpace(EffectiveValue(it)) != "" {
				return true
			}
		}
		return false
	}
	return strings.TrimSpace(EffectiveValue(value)) != ""
}
