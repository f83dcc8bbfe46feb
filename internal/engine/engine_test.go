package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"handover/internal/db"
	"handover/internal/engine"
	"handover/internal/integrations"
	"handover/internal/migrate"
	"handover/internal/repo"
	"handover/internal/schema"
	"handover/internal/versions"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func testConfig() *schema.Config {
	return &schema.Config{
		Version: 1,
		Sales: []schema.Field{
			{ID: "contract", Label: "Contract signed", Type: schema.TypeCheckbox},
			{ID: "contact", Label: "Contact person", Type: schema.TypeText},
			{ID: "accounts", Label: "Accounts", Type: schema.TypeGroup, Fields: []schema.Field{
				{ID: "apple", Label: "Apple account", Type: schema.TypeText},
				{ID: "google", Label: "Google account", Type: schema.TypeText},
			}},
		},
		Launch: []schema.Field{
			{ID: "app_name", Label: "App name", Type: schema.TypeText},
			{ID: "features", Label: "Features", Type: schema.TypeMultiInput, HasVersion: true},
			{ID: "integrations", Label: "Integrations", Type: schema.TypeGroup, Fields: []schema.Field{
				{ID: "selected", Label: "Selected", Type: schema.TypeMultiSelect, OptionsSource: schema.OptionsSourceIntegrations},
			}},
		},
	}
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.PutChecklistConfig(ctx, testConfig(), "tester"); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	cat := integrations.Catalog{
		{ID: "pay", Name: "Payments", Requirements: []string{"Merchant ID"}},
		{ID: "maps", Name: "Maps"},
	}
	if err := eng.PutCatalog(ctx, cat, "tester"); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createProject(t *testing.T) string {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, "proj-1", "Acme App", "Acme Inc", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p.ID
}

func TestCreateProjectDefaults(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	p, err := env.Engine.GetProject(env.Ctx, id)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Version != 1 || !reflect.DeepEqual(p.VersionHistory, []int{1}) {
		t.Fatalf("new project should start at version 1 with history [1], got %d %v", p.Version, p.VersionHistory)
	}
	if p.Status != "draft" {
		t.Fatalf("unexpected status %s", p.Status)
	}
}

func TestSetFieldValueRecomputesProgress(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	p, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "contract", true, "tester")
	if err != nil {
		t.Fatalf("set field: %v", err)
	}
	// 1 of 4 mandatory sales fields complete.
	if p.Progress.SalesCompletion != 25 {
		t.Fatalf("sales completion = %d, want 25", p.Progress.SalesCompletion)
	}
	p, err = env.Engine.SetFieldValue(env.Ctx, id, "sales", "accounts.apple", "dev@acme.com", "tester")
	if err != nil {
		t.Fatalf("set sub-field: %v", err)
	}
	if p.Progress.SalesCompletion != 50 {
		t.Fatalf("sales completion = %d, want 50", p.Progress.SalesCompletion)
	}
	if p.Progress.Overall != 25 {
		t.Fatalf("overall = %d, want 25", p.Progress.Overall)
	}
}

func TestSetFieldValueUnknownField(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	_, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "nope", "x", "tester")
	if !errors.Is(err, engine.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	_, err = env.Engine.SetFieldValue(env.Ctx, id, "qa", "contract", true, "tester")
	if !errors.Is(err, engine.ErrUnknownChecklist) {
		t.Fatalf("expected unknown checklist error, got %v", err)
	}
}

func TestNotRelevantExcludedFromProgress(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "contract", true, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "contact", "Jo", "tester"); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.SetNotRelevant(env.Ctx, id, "sales", "accounts.apple", true, "tester")
	if err != nil {
		t.Fatalf("set not relevant: %v", err)
	}
	p, err = env.Engine.SetNotRelevant(env.Ctx, id, "sales", "accounts.google", true, "tester")
	if err != nil {
		t.Fatalf("set not relevant: %v", err)
	}
	// 2 of 2 remaining mandatory fields are complete.
	if p.Progress.SalesCompletion != 100 {
		t.Fatalf("sales completion = %d, want 100", p.Progress.SalesCompletion)
	}
}

func TestRequirementStatusGatesIntegrationField(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	p, err := env.Engine.SetFieldValue(env.Ctx, id, "launch", "integrations.selected", []any{"pay"}, "tester")
	if err != nil {
		t.Fatalf("select integration: %v", err)
	}
	before := p.Progress.LaunchCompletion
	p, err = env.Engine.SetRequirementStatus(env.Ctx, id, "launch", "integrations.selected", "pay", "Merchant ID", true, "tester")
	if err != nil {
		t.Fatalf("check requirement: %v", err)
	}
	if p.Progress.LaunchCompletion <= before {
		t.Fatalf("checking the requirement should raise completion: %d -> %d", before, p.Progress.LaunchCompletion)
	}
}

func TestVersionsSeededAndPersisted(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	// Simulate an older document: no history, tagged items on record.
	_, err := env.Engine.Repo.MergeProjectDoc(env.Ctx, id, map[string]any{
		"version":        3,
		"versionHistory": nil,
		"launch": map[string]any{
			"features": []any{
				"legacy",
				map[string]any{"value": "push", "version": 5},
			},
		},
	}, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("merge doc: %v", err)
	}
	list, err := env.Engine.Versions(env.Ctx, id)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	want := []int{1, 2, 3, 5}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("got %v, want %v", list, want)
	}
	// The seeded list is persisted: a second call reads it back.
	p, err := env.Engine.GetProject(env.Ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.VersionHistory, want) {
		t.Fatalf("persisted history %v, want %v", p.VersionHistory, want)
	}
	again, err := env.Engine.Versions(env.Ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again, want) {
		t.Fatalf("second reconcile diverged: %v", again)
	}
}

func TestAdvanceAndDeleteVersion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	p, err := env.Engine.AdvanceVersion(env.Ctx, id, 3, "tester")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if p.Version != 3 || !reflect.DeepEqual(p.VersionHistory, []int{1, 2, 3}) {
		t.Fatalf("got version %d history %v", p.Version, p.VersionHistory)
	}
	if _, err := env.Engine.DeleteVersion(env.Ctx, id, 3, "tester"); !errors.Is(err, versions.ErrCurrentVersion) {
		t.Fatalf("deleting current version should be refused, got %v", err)
	}
	p, err = env.Engine.DeleteVersion(env.Ctx, id, 2, "tester")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !reflect.DeepEqual(p.VersionHistory, []int{1, 3}) {
		t.Fatalf("history after delete: %v", p.VersionHistory)
	}
}

func TestVersionViewFiltersCollections(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	_, err := env.Engine.SetFieldValue(env.Ctx, id, "launch", "features", []any{
		"legacy",
		map[string]any{"value": "push", "version": 2},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "launch", "integrations.selected", []any{"pay", "maps"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "launch", "integrations.selected_versions", nil, "tester"); err == nil {
		t.Fatalf("side keys are not addressable fields")
	}
	view, err := env.Engine.VersionView(env.Ctx, id, 2)
	if err != nil {
		t.Fatalf("version view: %v", err)
	}
	items, _ := view["features"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one v2 feature, got %v", view["features"])
	}
}

func TestSelectionMetaTagsVersions(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "launch", "integrations.selected", []any{"pay", "maps"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetSelectionMeta(env.Ctx, id, "launch", "integrations.selected", "pay", "live", 2, "tester"); err != nil {
		t.Fatalf("set selection meta: %v", err)
	}
	view, err := env.Engine.VersionView(env.Ctx, id, 2)
	if err != nil {
		t.Fatalf("version view: %v", err)
	}
	ids, _ := view["integrations.selected"].([]string)
	if len(ids) != 1 || ids[0] != "pay" {
		t.Fatalf("expected only the v2-tagged selection, got %v", view["integrations.selected"])
	}
	// Untagged selections stay at version 1.
	view, err = env.Engine.VersionView(env.Ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	ids, _ = view["integrations.selected"].([]string)
	if len(ids) != 1 || ids[0] != "maps" {
		t.Fatalf("expected the untagged selection at v1, got %v", view["integrations.selected"])
	}
}

func TestUnknownKeysSurviveWrites(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	_, err := env.Engine.Repo.MergeProjectDoc(env.Ctx, id, map[string]any{
		"legacy_flag": "keep-me",
	}, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "contract", true, "tester"); err != nil {
		t.Fatal(err)
	}
	doc, err := env.Engine.Repo.GetProjectDoc(env.Ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc["legacy_flag"] != "keep-me" {
		t.Fatalf("unknown key lost on write: %v", doc["legacy_flag"])
	}
}

func TestDeleteProject(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	if err := env.Engine.DeleteProject(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEventsAppended(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	if _, err := env.Engine.SetFieldValue(env.Ctx, id, "sales", "contract", true, "tester"); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, id, "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) < 2 {
		t.Fatalf("expected create + field events, got %d", len(evts))
	}
	if evts[0].Type != "field.updated" || evts[0].FieldID != "contract" {
		t.Fatalf("unexpected newest event %+v", evts[0])
	}
}
