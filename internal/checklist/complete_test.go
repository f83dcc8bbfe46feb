package checklist_test

import (
	"testing"

	"handover/internal/checklist"
	"handover/internal/integrations"
	"handover/internal/schema"
)

func leaf(id string, ft schema.FieldType) schema.Flat {
	return schema.Flat{Field: schema.Field{ID: id, Type: ft}}
}

func salesCtx() checklist.Context  { return checklist.Context{Kind: checklist.KindSales} }
func launchCtx() checklist.Context { return checklist.Context{Kind: checklist.KindLaunch} }

func TestCheckboxComplete(t *testing.T) {
	f := leaf("c", schema.TypeCheckbox)
	if checklist.IsComplete(f, nil, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("missing checkbox should be incomplete")
	}
	if checklist.IsComplete(f, false, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("unchecked checkbox should be incomplete")
	}
	if !checklist.IsComplete(f, true, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("checked checkbox should be complete")
	}
}

func TestTextComplete(t *testing.T) {
	f := leaf("t", schema.TypeText)
	for _, v := range []any{nil, "", "   "} {
		if checklist.IsComplete(f, v, checklist.FieldMeta{}, salesCtx()) {
			t.Fatalf("value %q should be incomplete", v)
		}
	}
	if !checklist.IsComplete(f, "hello", checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("non-blank text should be complete")
	}
}

func TestVersionedTextComplete(t *testing.T) {
	f := leaf("notes", schema.TypeTextarea)
	f.Field.HasVersion = true
	value := []any{map[string]any{"value": "v2 notes", "version": float64(2)}}
	if !checklist.IsComplete(f, value, checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("versioned entry with text should be complete")
	}
	blank := []any{map[string]any{"value": "  ", "version": float64(1)}}
	if checklist.IsComplete(f, blank, checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("only blank entries should be incomplete")
	}
}

func TestMultiInputSalesLaunchAsymmetry(t *testing.T) {
	f := leaf("items", schema.TypeMultiInput)
	value := []any{"a", ""}
	if !checklist.IsComplete(f, value, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("sales needs only a non-empty list")
	}
	if checklist.IsComplete(f, value, checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("launch requires every entry filled")
	}
	if checklist.IsComplete(f, []any{}, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("empty list incomplete on either checklist")
	}
}

func TestMultiInputObjectItems(t *testing.T) {
	f := leaf("features", schema.TypeMultiInput)
	value := []any{
		map[string]any{"value": "login", "status": "done", "version": float64(1)},
		map[string]any{"value": "push", "version": float64(2)},
	}
	if !checklist.IsComplete(f, value, checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("filled object items should be complete")
	}
	value = append(value, map[string]any{"value": ""})
	if checklist.IsComplete(f, value, checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("blank object item should fail launch rule")
	}
}

func TestStaticMultiSelect(t *testing.T) {
	f := leaf("track", schema.TypeMultiSelect)
	if checklist.IsComplete(f, []any{}, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("empty selection incomplete")
	}
	if !checklist.IsComplete(f, []any{"beta"}, checklist.FieldMeta{}, salesCtx()) {
		t.Fatalf("non-empty static selection complete")
	}
}

func TestIntegrationMultiSelectDelegatesToGate(t *testing.T) {
	f := leaf("selected", schema.TypeMultiSelect)
	f.Field.OptionsSource = schema.OptionsSourceIntegrations
	ctx := checklist.Context{
		Kind: checklist.KindLaunch,
		Catalog: integrations.Catalog{
			{ID: "pay", Requirements: []string{"Merchant ID"}},
		},
	}
	meta := checklist.FieldMeta{RequirementStatus: map[string]map[string]bool{}}
	if checklist.IsComplete(f, []any{"pay"}, meta, ctx) {
		t.Fatalf("unmet requirement should block completion")
	}
	meta.RequirementStatus["pay"] = map[string]bool{"Merchant ID": true}
	if !checklist.IsComplete(f, []any{"pay"}, meta, ctx) {
		t.Fatalf("met requirements should complete")
	}
	if checklist.IsComplete(f, []any{}, meta, ctx) {
		t.Fatalf("empty selection never complete")
	}
}

func TestWrongShapeIsIncompleteNotError(t *testing.T) {
	// A schema change can leave stale values behind; they degrade to
	// incomplete instead of failing.
	f := leaf("items", schema.TypeMultiInput)
	if checklist.IsComplete(f, "not a list", checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("string value for a list field is incomplete")
	}
	cb := leaf("c", schema.TypeCheckbox)
	if checklist.IsComplete(cb, "true", checklist.FieldMeta{}, launchCtx()) {
		t.Fatalf("string true is not a checked checkbox")
	}
}

func TestValueForGroupSubField(t *testing.T) {
	bag := map[string]any{
		"accounts": map[string]any{
			"apple": "dev@example.com",
		},
	}
	f := schema.Flat{Field: schema.Field{ID: "apple", Type: schema.TypeText}, IsSubField: true, GroupID: "accounts"}
	if got := checklist.ValueFor(bag, f); got != "dev@example.com" {
		t.Fatalf("unexpected sub-field value %v", got)
	}
	missing := schema.Flat{Field: schema.Field{ID: "google", Type: schema.TypeText}, IsSubField: true, GroupID: "accounts"}
	if got := checklist.ValueFor(bag, missing); got != nil {
		t.Fatalf("missing sub-field should be nil, got %v", got)
	}
}

func TestMetaForNotRelevantInheritance(t *testing.T) {
	bag := map[string]any{
		"accounts_notRelevant": true,
		"accounts":             map[string]any{"apple": "x"},
		"plain_notRelevant":    true,
	}
	sub := schema.Flat{Field: schema.Field{ID: "apple", Type: schema.TypeText}, IsSubField: true, GroupID: "accounts"}
	if !checklist.MetaFor(bag, sub).NotRelevant {
		t.Fatalf("sub-field should inherit group not-relevant")
	}
	plain := leaf("plain", schema.TypeText)
	if !checklist.MetaFor(bag, plain).NotRelevant {
		t.Fatalf("top-level not-relevant flag should apply")
	}
	other := leaf("other", schema.TypeText)
	if checklist.MetaFor(bag, other).NotRelevant {
		t.Fatalf("unflagged field should be relevant")
	}
}

func TestEffectiveValueCoercion(t *testing.T) {
	if checklist.EffectiveValue("plain") != "plain" {
		t.Fatalf("plain string passes through")
	}
	if checklist.EffectiveValue(map[string]any{"value": "v", "version": float64(2)}) != "v" {
		t.Fatalf("object item yields its value")
	}
	if checklist.EffectiveValue(nil) != "" {
		t.Fatalf("nil yields empty string")
	}
}

func TestItemVersionDefaults(t *testing.T) {
	if checklist.ItemVersion("legacy") != 1 {
		t.Fatalf("legacy string is version 1")
	}
	if checklist.ItemVersion(map[string]any{"value": "x"}) != 1 {
		t.Fatalf("untagged object is version 1")
	}
	if checklist.ItemVersion(map[string]any{"value": "x", "version": float64(3)}) != 3 {
		t.Fatalf("tagged object keeps its version")
	}
}
