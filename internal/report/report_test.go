package report_test

import (
	"strings"
	"testing"

	"handover/internal/domain"
	"handover/internal/report"
	"handover/internal/schema"
)

func testConfig() *schema.Config {
	return &schema.Config{
		Version: 1,
		Sales: []schema.Field{
			{ID: "contract", Label: "Contract signed", Type: schema.TypeCheckbox},
			{ID: "contact", Label: "Contact person", Type: schema.TypeText},
		},
		Launch: []schema.Field{
			{ID: "app_name", Label: "App name", Type: schema.TypeText},
		},
	}
}

func testProject() domain.Project {
	return domain.Project{
		ID:      "p1",
		Name:    "Acme App",
		Client:  "Acme Inc",
		Status:  "in_handover",
		Version: 1,
		Sales: map[string]any{
			"contract": true,
		},
		Launch: map[string]any{},
	}
}

func TestBuildComputesFreshPercentages(t *testing.T) {
	r := report.Build(testProject(), testConfig(), nil)
	if len(r.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(r.Sections))
	}
	if r.Sections[0].Completion != 50 {
		t.Fatalf("sales completion = %d, want 50", r.Sections[0].Completion)
	}
	if r.Overall != 25 {
		t.Fatalf("overall = %d, want 25", r.Overall)
	}
}

func TestMissingListsIncompleteMandatoryFields(t *testing.T) {
	r := report.Build(testProject(), testConfig(), nil)
	missing := r.Missing()
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %d", len(missing))
	}
	if missing[0].Label != "Contact person" {
		t.Fatalf("unexpected first missing field %q", missing[0].Label)
	}
}

func TestMarkdownRendersSections(t *testing.T) {
	r := report.Build(testProject(), testConfig(), nil)
	md, err := r.Markdown()
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	for _, want := range []string{"# Handover: Acme App", "## Sales checklist (50%)", "Contract signed"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestEmailDraft(t *testing.T) {
	r := report.Build(testProject(), testConfig(), nil)
	mail, err := r.EmailDraft()
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	if !strings.Contains(mail, "Contact person") || !strings.Contains(mail, "Acme App") {
		t.Fatalf("email draft incomplete:\n%s", mail)
	}

	complete := testProject()
	complete.Sales["contact"] = "Jo"
	complete.Launch["app_name"] = "Acme"
	mail, err = report.Build(complete, testConfig(), nil).EmailDraft()
	if err != nil {
		t.Fatal(err)
	}
	if mail != "" {
		t.Fatalf("nothing missing should yield empty draft, got:\n%s", mail)
	}
}
