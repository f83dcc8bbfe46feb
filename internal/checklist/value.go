package checklist

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"handover/internal/schema"
)

// Kind selects which checklist's rules apply.
type Kind string

const (
	KindSales  Kind = "sales"
	KindLaunch Kind = "launch"
)

// Side-channel key suffixes stored beside a field's value in the same
// object. Historical documents use these raw concatenated keys; MetaFor
// is the only place that knows about them.
const (
	suffixNotRelevant       = "_notRelevant"
	suffixRequirementStatus = "_requirementStatus"
	suffixStatuses          = "_statuses"
	suffixVersions          = "_versions"
)

// FieldMeta is the typed companion record extracted from a value bag's
// side-channel keys for one field.
type FieldMeta struct {
	NotRelevant       bool
	RequirementStatus map[string]map[string]bool
	StatusesByID      map[string]string
	VersionsByID      map[string]int
}

// NotRelevantKey returns the side key that flags a field not relevant.
func NotRelevantKey(fieldID string) string { return fieldID + suffixNotRelevant }

// RequirementStatusKey returns the side key holding the per-integration
// requirement check-off map.
func RequirementStatusKey(fieldID string) string { return fieldID + suffixRequirementStatus }

// StatusesKey returns the side key holding the id→status map for
// integration-backed selections.
func StatusesKey(fieldID string) string { return fieldID + suffixStatuses }

// VersionsKey returns the side key holding the id→version map for
// integration-backed selections.
func VersionsKey(fieldID string) string { return fieldID + suffixVersions }

// ValueFor resolves a flattened field's value in a bag. Sub-field
// values live inside the group's nested object. A missing key or a
// group value of the wrong shape yields nil, never an error.
func ValueFor(bag map[string]any, f schema.Flat) any {
	c := container(bag, f)
	if c == nil {
		return nil
	}
	return c[f.Field.ID]
}

// MetaFor extracts the side-channel metadata for a flattened field.
// A sub-field inherits not-relevant from its parent group.
func MetaFor(bag map[string]any, f schema.Flat) FieldMeta {
	m := FieldMeta{}
	if f.IsSubField && boolValue(bag[NotRelevantKey(f.GroupID)]) {
		m.NotRelevant = true
	}
	c := container(bag, f)
	if c == nil {
		return m
	}
	if boolValue(c[NotRelevantKey(f.Field.ID)]) {
		m.NotRelevant = true
	}
	m.RequirementStatus = boolMapByID(c[RequirementStatusKey(f.Field.ID)])
	m.StatusesByID = stringMap(c[StatusesKey(f.Field.ID)])
	m.VersionsByID = intMap(c[VersionsKey(f.Field.ID)])
	return m
}

func container(bag map[string]any, f schema.Flat) map[string]any {
	if bag == nil {
		return nil
	}
	if !f.IsSubField {
		return bag
	}
	group, _ := bag[f.GroupID].(map[string]any)
	return group
}

// EffectiveValue normalizes a list item to its string value. Items are
// either plain legacy strings or {value, status?, version?, remark?}
// objects; every consumer coerces through this one rule.
func EffectiveValue(item any) string {
	switch v := item.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		return stringValue(v["value"])
	default:
		return fmt.Sprint(v)
	}
}

// ItemVersion returns the version tag of a list item; plain legacy
// values and untagged objects are version 1.
func ItemVersion(item any) int {
	if m, ok := item.(map[string]any); ok {
		if v := intValue(m["version"]); v > 0 {
			return v
		}
	}
	return 1
}

// ItemStatus returns the workflow status tag of a list item, if any.
func ItemStatus(item any) string {
	if m, ok := item.(map[string]any); ok {
		return stringValue(m["status"])
	}
	return ""
}

// List coerces a value to a slice. Strings and scalars are not lists.
func List(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// StringList coerces a value to its string entries, dropping non-strings.
func StringList(v any) []string {
	items, ok := List(v)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func intValue(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	default:
		return 0
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = stringValue(val)
	}
	return out
}

func intMap(v any) map[string]int {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, val := range m {
		out[k] = intValue(val)
	}
	return out
}

func boolMapByID(v any) map[string]map[string]bool {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]bool, len(m))
	for id, inner := range m {
		im, ok := inner.(map[string]any)
		if !ok {
			continue
		}
		checks := make(map[string]bool, len(im))
		for req, val := range im {
			checks[req] = boolValue(val)
		}
		out[id] = checks
	}
	return out
}
