// Package report renders human-facing handover documents from the
// computed completion verdicts: a Markdown report and a missing-info
// email draft for the sales side.
package report

import (
	"fmt"
	"strings"
	"text/template"

	"handover/internal/checklist"
	"handover/internal/domain"
	"handover/internal/integrations"
	"handover/internal/schema"
)

// Line is one field's verdict in a report section.
type Line struct {
	Label       string
	Value       string
	Complete    bool
	NotRelevant bool
	Mandatory   bool
}

// Section groups the lines of one checklist side.
type Section struct {
	Title      string
	Completion int
	Lines      []Line
}

// Report is the assembled view handed to the templates.
type Report struct {
	Project  domain.Project
	Sections []Section
	Overall  int
}

// Build assembles the report data for a project. It only reads its
// inputs; percentages come from recomputation, not the stored ones,
// so a stale document still reports current numbers.
func Build(p domain.Project, cfg *schema.Config, cat integrations.Catalog) Report {
	r := Report{Project: p}
	sales := buildSection("Sales checklist", schema.Flatten(cfg.Sales), p.Sales,
		checklist.Context{Kind: checklist.KindSales, Catalog: cat})
	launch := buildSection("Launch checklist", schema.Flatten(cfg.Launch), p.Launch,
		checklist.Context{Kind: checklist.KindLaunch, Catalog: cat})
	r.Sections = []Section{sales, launch}
	r.Overall = checklist.Overall(sales.Completion, launch.Completion)
	return r
}

func buildSection(title string, fields []schema.Flat, bag map[string]any, ctx checklist.Context) Section {
	s := Section{Title: title, Completion: checklist.Completion(fields, bag, ctx)}
	for _, f := range fields {
		meta := checklist.MetaFor(bag, f)
		value := checklist.ValueFor(bag, f)
		label := f.Field.Label
		if f.IsSubField {
			label = f.GroupID + " / " + label
		}
		s.Lines = append(s.Lines, Line{
			Label:       label,
			Value:       renderValue(f, value),
			Complete:    checklist.IsComplete(f, value, meta, ctx),
			NotRelevant: meta.NotRelevant,
			Mandatory:   f.Field.Mandatory(),
		})
	}
	return s
}

func renderValue(f schema.Flat, value any) string {
	switch f.Field.Type {
	case schema.TypeCheckbox:
		if value == true {
			return "yes"
		}
		return "no"
	case schema.TypeMultiInput, schema.TypeMultiSelect:
		items, ok := checklist.List(value)
		if !ok {
			return ""
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if v := checklist.EffectiveValue(it); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return checklist.EffectiveValue(value)
	}
}

// Missing returns the mandatory, relevant, incomplete lines of every
// section: the list the email draft nags about.
func (r Report) Missing() []Line {
	var out []Line
	for _, s := range r.Sections {
		for _, l := range s.Lines {
			if l.Mandatory && !l.NotRelevant && !l.Complete {
				out = append(out, l)
			}
		}
	}
	return out
}

var markdownTmpl = template.Must(template.New("markdown").Parse(`# Handover: {{.Project.Name}}

Client: {{if .Project.Client}}{{.Project.Client}}{{else}}-{{end}}
Status: {{.Project.Status}}
Version: {{.Project.Version}}
Overall completion: {{.Overall}}%
{{range .Sections}}
## {{.Title}} ({{.Completion}}%)

| Field | Value | Done |
|---|---|---|
{{- range .Lines}}
| {{.Label}} | {{.Value}} | {{if .NotRelevant}}n/a{{else if .Complete}}x{{else}} {{end}} |
{{- end}}
{{end}}`))

// Markdown renders the full handover report.
func (r Report) Markdown() (string, error) {
	var b strings.Builder
	if err := markdownTmpl.Execute(&b, r); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return b.String(), nil
}

var emailTmpl = template.Must(template.New("email").Parse(`Subject: Missing handover information for {{.Project.Name}}

Hi,

we are preparing the launch of {{.Project.Name}} and are still missing
the following information:
{{range .Missing}}
- {{.Label}}
{{- end}}

Could you provide these so we can continue? Current overall completion
is at {{.Overall}}%.

Thanks!
`))

// EmailDraft renders the missing-information email. With nothing
// missing it returns an empty string.
func (r Report) EmailDraft() (string, error) {
	if len(r.Missing()) == 0 {
		return "", nil
	}
	var b strings.Builder
	if err := emailTmpl.Execute(&b, r); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return b.String(), nil
}
