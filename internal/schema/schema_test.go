package schema_test

import (
	"testing"

	"handover/internal/schema"
)

func TestValidateRequiresSections(t *testing.T) {
	cases := []struct {
		name string
		cfg  schema.Config
	}{
		{"missing version", schema.Config{Sales: []schema.Field{}, Launch: []schema.Field{}}},
		{"missing sales", schema.Config{Version: 1, Launch: []schema.Field{}}},
		{"missing launch", schema.Config{Version: 1, Sales: []schema.Field{}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
	empty := schema.Config{Version: 1, Sales: []schema.Field{}, Launch: []schema.Field{}}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty sections should validate: %v", err)
	}
}

func TestValidateRejectsNestedGroups(t *testing.T) {
	cfg := schema.Config{
		Version: 1,
		Sales: []schema.Field{
			{ID: "g", Type: schema.TypeGroup, Fields: []schema.Field{
				{ID: "inner", Type: schema.TypeGroup},
			}},
		},
		Launch: []schema.Field{},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected nested group rejection")
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	cfg := schema.Config{
		Version: 1,
		Sales: []schema.Field{
			{ID: "a", Type: schema.TypeText},
			{ID: "a", Type: schema.TypeCheckbox},
		},
		Launch: []schema.Field{},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate id rejection")
	}
}

func TestMandatoryDefaults(t *testing.T) {
	if !(schema.Field{ID: "f"}).Mandatory() {
		t.Fatalf("field with neither flag should be mandatory")
	}
	if (schema.Field{ID: "f", Optional: true}).Mandatory() {
		t.Fatalf("optional field should not be mandatory")
	}
	if !(schema.Field{ID: "f", Optional: true, Required: true}).Mandatory() {
		t.Fatalf("required wins over optional")
	}
}

func TestDefaultSchemaValidates(t *testing.T) {
	cfg := schema.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default schema invalid: %v", err)
	}
	if len(cfg.Sales) == 0 || len(cfg.Launch) == 0 {
		t.Fatalf("default schema should carry both checklists")
	}
}

func TestFromJSON(t *testing.T) {
	data := []byte(`{"version":1,"sales":[{"id":"a","type":"text"}],"launch":[]}`)
	cfg, err := schema.FromJSON(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Sales) != 1 || cfg.Sales[0].ID != "a" {
		t.Fatalf("unexpected sales fields: %+v", cfg.Sales)
	}
}

func TestFlattenOrder(t *testing.T) {
	fields := []schema.Field{
		{ID: "a", Type: schema.TypeText},
		{ID: "g", Type: schema.TypeGroup, Fields: []schema.Field{
			{ID: "b", Type: schema.TypeText},
			{ID: "c", Type: schema.TypeCheckbox},
		}},
		{ID: "d", Type: schema.TypeCheckbox},
	}
	flat := schema.Flatten(fields)
	want := []struct {
		id    string
		sub   bool
		group string
	}{
		{"a", false, ""},
		{"b", true, "g"},
		{"c", true, "g"},
		{"d", false, ""},
	}
	if len(flat) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(flat))
	}
	for i, w := range want {
		got := flat[i]
		if got.Field.ID != w.id || got.IsSubField != w.sub || got.GroupID != w.group {
			t.Errorf("entry %d: got %s/%v/%s want %s/%v/%s",
				i, got.Field.ID, got.IsSubField, got.GroupID, w.id, w.sub, w.group)
		}
	}
}

func TestFlattenEmptyGroup(t *testing.T) {
	flat := schema.Flatten([]schema.Field{{ID: "g", Type: schema.TypeGroup}})
	if len(flat) != 0 {
		t.Fatalf("empty group should yield no leaves, got %d", len(flat))
	}
}
