package checklist_test

import (
	"fmt"
	"testing"

	"handover/internal/checklist"
	"handover/internal/schema"
)

func TestCompletionNotRelevantLeavesDenominator(t *testing.T) {
	// Ten required fields, three flagged not relevant, the remaining
	// seven all filled: 100%, not 70%.
	fields := make([]schema.Flat, 0, 10)
	bag := map[string]any{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("f%d", i)
		fields = append(fields, leaf(id, schema.TypeText))
		if i < 3 {
			bag[checklist.NotRelevantKey(id)] = true
		} else {
			bag[id] = "done"
		}
	}
	if got := checklist.Completion(fields, bag, salesCtx()); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestCompletionSkipsOptionalFields(t *testing.T) {
	fields := []schema.Flat{
		leaf("req", schema.TypeText),
		{Field: schema.Field{ID: "opt", Type: schema.TypeText, Optional: true}},
	}
	bag := map[string]any{"req": "x"}
	if got := checklist.Completion(fields, bag, salesCtx()); got != 100 {
		t.Fatalf("optional field should not count, got %d", got)
	}
}

func TestCompletionRounding(t *testing.T) {
	fields := []schema.Flat{
		leaf("a", schema.TypeText),
		leaf("b", schema.TypeText),
		leaf("c", schema.TypeText),
	}
	bag := map[string]any{"a": "x"}
	if got := checklist.Completion(fields, bag, salesCtx()); got != 33 {
		t.Fatalf("1 of 3 should round to 33, got %d", got)
	}
	bag["b"] = "y"
	if got := checklist.Completion(fields, bag, salesCtx()); got != 67 {
		t.Fatalf("2 of 3 should round to 67, got %d", got)
	}
}

func TestCompletionEmptyChecklist(t *testing.T) {
	if got := checklist.Completion(nil, nil, salesCtx()); got != 0 {
		t.Fatalf("no countable fields should be 0, got %d", got)
	}
	only := []schema.Flat{{Field: schema.Field{ID: "o", Type: schema.TypeText, Optional: true}}}
	if got := checklist.Completion(only, map[string]any{}, salesCtx()); got != 0 {
		t.Fatalf("all-optional checklist should be 0, got %d", got)
	}
}

func TestOverallAverage(t *testing.T) {
	if got := checklist.Overall(40, 60); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := checklist.Overall(33, 100); got != 67 {
		t.Fatalf("expected 67, got %d", got)
	}
	if got := checklist.Overall(0, 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
