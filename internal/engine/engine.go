package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"handover/internal/checklist"
	"handover/internal/domain"
	"handover/internal/events"
	"handover/internal/integrations"
	"handover/internal/repo"
	"handover/internal/report"
	"handover/internal/schema"
	"handover/internal/versions"
)

var (
	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownChecklist = errors.New("unknown checklist")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.New(db),
		Events: events.Writer{DB: db},
		Log:    slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateProject inserts a fresh handover document at version 1.
func (e Engine) CreateProject(ctx context.Context, id, name, client, actorID string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	now := e.nowRFC()
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+"|"+now)).String()
	}
	p := domain.Project{
		ID:             id,
		Name:           name,
		Client:         client,
		Status:         "draft",
		Sales:          map[string]any{},
		Launch:         map[string]any{},
		Version:        1,
		VersionHistory: []int{1},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.appendEvent(ctx, events.ProjectCreated, p.ID, "", actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx)
}

func (e Engine) UpdateProjectStatus(ctx context.Context, id, status, actorID string) (domain.Project, error) {
	switch status {
	case "draft", "in_handover", "launched", "archived":
	default:
		return domain.Project{}, fmt.Errorf("invalid status %s", status)
	}
	if _, err := e.Repo.MergeProjectDoc(ctx, id, map[string]any{"status": status}, e.nowRFC()); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	return e.appendEvent(ctx, events.ProjectDeleted, id, "", actorID, nil)
}

// resolveField finds a flattened field by id, or by "group.sub" path
// when a sub-field id is ambiguous or qualified.
func resolveField(fields []schema.Flat, fieldID string) (schema.Flat, error) {
	if group, sub, ok := strings.Cut(fieldID, "."); ok {
		for _, f := range fields {
			if f.IsSubField && f.GroupID == group && f.Field.ID == sub {
				return f, nil
			}
		}
		return schema.Flat{}, fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}
	for _, f := range fields {
		if f.Field.ID == fieldID {
			return f, nil
		}
	}
	return schema.Flat{}, fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
}

func checklistKind(kind string) (checklist.Kind, error) {
	switch kind {
	case "sales":
		return checklist.KindSales, nil
	case "launch":
		return checklist.KindLaunch, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownChecklist, kind)
	}
}

// fieldsFor returns the flattened field list for one checklist side.
func fieldsFor(cfg *schema.Config, kind checklist.Kind) []schema.Flat {
	if kind == checklist.KindLaunch {
		return schema.Flatten(cfg.Launch)
	}
	return schema.Flatten(cfg.Sales)
}

// SetFieldValue writes one field value and recomputes progress in the
// same document write. Unknown keys already in the document survive.
func (e Engine) SetFieldValue(ctx context.Context, projectID, kind, fieldID string, value any, actorID string) (domain.Project, error) {
	return e.mutateBag(ctx, projectID, kind, fieldID, actorID, func(container map[string]any, f schema.Flat) {
		container[f.Field.ID] = value
	})
}

// SetNotRelevant flags or unflags a field as not relevant, excluding
// it from both sides of the completion ratio.
func (e Engine) SetNotRelevant(ctx context.Context, projectID, kind, fieldID string, flag bool, actorID string) (domain.Project, error) {
	return e.mutateBag(ctx, projectID, kind, fieldID, actorID, func(container map[string]any, f schema.Flat) {
		if flag {
			container[checklist.NotRelevantKey(f.Field.ID)] = true
		} else {
			delete(container, checklist.NotRelevantKey(f.Field.ID))
		}
	})
}

// SetRequirementStatus checks or unchecks one requirement of one
// selected integration on an integration-backed field.
func (e Engine) SetRequirementStatus(ctx context.Context, projectID, kind, fieldID, integrationID, requirement string, checked bool, actorID string) (domain.Project, error) {
	return e.mutateBag(ctx, projectID, kind, fieldID, actorID, func(container map[string]any, f schema.Flat) {
		status := ensureMap(container, checklist.RequirementStatusKey(f.Field.ID))
		perIntegration := ensureMap(status, integrationID)
		perIntegration[requirement] = checked
	})
}

// SetSelectionMeta tags one selected integration with a workflow
// status and/or a version on an integration-backed field. Zero values
// leave the respective side-map untouched.
func (e Engine) SetSelectionMeta(ctx context.Context, projectID, kind, fieldID, integrationID, status string, version int, actorID string) (domain.Project, error) {
	return e.mutateBag(ctx, projectID, kind, fieldID, actorID, func(container map[string]any, f schema.Flat) {
		if status != "" {
			ensureMap(container, checklist.StatusesKey(f.Field.ID))[integrationID] = status
		}
		if version > 0 {
			ensureMap(container, checklist.VersionsKey(f.Field.ID))[integrationID] = version
		}
	})
}

func (e Engine) mutateBag(ctx context.Context, projectID, kind, fieldID, actorID string, mutate func(container map[string]any, f schema.Flat)) (domain.Project, error) {
	k, err := checklistKind(kind)
	if err != nil {
		return domain.Project{}, err
	}
	cfg, err := e.Repo.ChecklistConfig(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	f, err := resolveField(fieldsFor(cfg, k), fieldID)
	if err != nil {
		return domain.Project{}, err
	}
	doc, err := e.Repo.GetProjectDoc(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	bag := ensureMap(doc, string(k))
	container := bag
	if f.IsSubField {
		container = ensureMap(bag, f.GroupID)
	}
	mutate(container, f)

	cat, err := e.Repo.Catalog(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	progress := computeProgress(doc, cfg, cat)
	doc["progress"] = progress
	if err := e.Repo.PutProjectDoc(ctx, projectID, doc, e.nowRFC()); err != nil {
		return domain.Project{}, err
	}
	err = e.appendEvent(ctx, events.FieldUpdated, projectID, fieldID, actorID, events.EventPayload{
		"checklist": kind,
		"overall":   progress.Overall,
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// ensureMap returns parent[key] as a map, creating it when missing or
// of the wrong shape.
func ensureMap(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	parent[key] = m
	return m
}

func computeProgress(doc map[string]any, cfg *schema.Config, cat integrations.Catalog) domain.Progress {
	salesBag, _ := doc["sales"].(map[string]any)
	launchBag, _ := doc["launch"].(map[string]any)
	sales := checklist.Completion(schema.Flatten(cfg.Sales), salesBag, checklist.Context{Kind: checklist.KindSales, Catalog: cat})
	launch := checklist.Completion(schema.Flatten(cfg.Launch), launchBag, checklist.Context{Kind: checklist.KindLaunch, Catalog: cat})
	return domain.Progress{
		SalesCompletion:  sales,
		LaunchCompletion: launch,
		Overall:          checklist.Overall(sales, launch),
	}
}

// Progress recomputes completion from the stored document without
// writing anything back.
func (e Engine) Progress(ctx context.Context, projectID string) (domain.Progress, error) {
	doc, err := e.Repo.GetProjectDoc(ctx, projectID)
	if err != nil {
		return domain.Progress{}, err
	}
	cfg, err := e.Repo.ChecklistConfig(ctx)
	if err != nil {
		return domain.Progress{}, err
	}
	cat, err := e.Repo.Catalog(ctx)
	if err != nil {
		return domain.Progress{}, err
	}
	return computeProgress(doc, cfg, cat), nil
}

// RecomputeAndSave recomputes progress and persists it on the project.
func (e Engine) RecomputeAndSave(ctx context.Context, projectID, actorID string) (domain.Progress, error) {
	progress, err := e.Progress(ctx, projectID)
	if err != nil {
		return domain.Progress{}, err
	}
	if err := e.Repo.UpdateProgress(ctx, projectID, progress, e.nowRFC()); err != nil {
		return domain.Progress{}, err
	}
	err = e.appendEvent(ctx, events.ProgressRecompute, projectID, "", actorID, events.EventPayload{
		"salesCompletion":  progress.SalesCompletion,
		"launchCompletion": progress.LaunchCompletion,
		"overall":          progress.Overall,
	})
	if err != nil {
		return domain.Progress{}, err
	}
	return progress, nil
}

// Versions returns the reconciled version list. When a project had no
// stored history the reconciled list is persisted best-effort: a
// failed write is logged and the in-memory list is still returned.
func (e Engine) Versions(ctx context.Context, projectID string) ([]int, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Repo.ChecklistConfig(ctx)
	if err != nil {
		return nil, err
	}
	list, seeded := versions.Reconcile(p.Version, p.VersionHistory, schema.Flatten(cfg.Launch), p.Launch)
	if seeded {
		current := p.Version
		if current < 1 {
			current = 1
		}
		if err := e.Repo.UpdateVersionState(ctx, projectID, current, list, e.nowRFC()); err != nil {
			e.log().Warn("persist reconciled version history failed",
				"project", projectID, "error", err)
		}
	}
	return list, nil
}

// AdvanceVersion moves the current version pointer forward. to == 0
// means current+1. The history is extended with every integer up to
// the new pointer.
func (e Engine) AdvanceVersion(ctx context.Context, projectID string, to int, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if to == 0 {
		to = p.Version + 1
	}
	if to < 1 {
		return domain.Project{}, fmt.Errorf("invalid version %d", to)
	}
	history := versions.Advance(p.VersionHistory, to)
	if err := e.Repo.UpdateVersionState(ctx, projectID, to, history, e.nowRFC()); err != nil {
		return domain.Project{}, err
	}
	err = e.appendEvent(ctx, events.VersionAdvanced, projectID, "", actorID, events.EventPayload{
		"from": p.Version, "to": to,
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// DeleteVersion removes a non-current version from the history.
func (e Engine) DeleteVersion(ctx context.Context, projectID string, target int, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	history, err := versions.Delete(p.VersionHistory, p.Version, target)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.UpdateVersionState(ctx, projectID, p.Version, history, e.nowRFC()); err != nil {
		return domain.Project{}, err
	}
	err = e.appendEvent(ctx, events.VersionDeleted, projectID, "", actorID, events.EventPayload{"version": target})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// VersionView filters every versioned launch collection down to the
// items tagged with the target version, keyed by field path.
func (e Engine) VersionView(ctx context.Context, projectID string, target int) (map[string]any, error) {
	if target < 1 {
		return nil, fmt.Errorf("invalid version %d", target)
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Repo.ChecklistConfig(ctx)
	if err != nil {
		return nil, err
	}
	view := map[string]any{}
	for _, f := range schema.Flatten(cfg.Launch) {
		path := f.Field.ID
		if f.IsSubField {
			path = f.GroupID + "." + f.Field.ID
		}
		if f.Field.HasVersion {
			if items, ok := checklist.List(checklist.ValueFor(p.Launch, f)); ok {
				view[path] = versions.FilterByVersion(items, target)
			}
			continue
		}
		if f.Field.IntegrationBacked() {
			meta := checklist.MetaFor(p.Launch, f)
			ids := checklist.StringList(checklist.ValueFor(p.Launch, f))
			view[path] = versions.FilterIDsByVersion(ids, meta.VersionsByID, target)
		}
	}
	return view, nil
}

// Report assembles the handover report view for a project.
func (e Engine) Report(ctx context.Context, projectID string) (report.Report, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return report.Report{}, err
	}
	cfg, err := e.Repo.ChecklistConfig(ctx)
	if err != nil {
		return report.Report{}, err
	}
	cat, err := e.Repo.Catalog(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(p, cfg, cat), nil
}

// ChecklistConfig returns the active checklist schema.
func (e Engine) ChecklistConfig(ctx context.Context) (*schema.Config, error) {
	return e.Repo.ChecklistConfig(ctx)
}

func (e Engine) PutChecklistConfig(ctx context.Context, cfg *schema.Config, actorID string) error {
	if err := e.Repo.PutChecklistConfig(ctx, cfg, e.nowRFC()); err != nil {
		return err
	}
	return e.appendEvent(ctx, events.ConfigUpdated, "", "", actorID, events.EventPayload{"doc": repo.DocChecklist})
}

// Catalog returns the integrations catalog.
func (e Engine) Catalog(ctx context.Context) (integrations.Catalog, error) {
	return e.Repo.Catalog(ctx)
}

func (e Engine) PutCatalog(ctx context.Context, cat integrations.Catalog, actorID string) error {
	if err := e.Repo.PutCatalog(ctx, cat, e.nowRFC()); err != nil {
		return err
	}
	return e.appendEvent(ctx, events.ConfigUpdated, "", "", actorID, events.EventPayload{"doc": repo.DocIntegrations})
}

func (e Engine) appendEvent(ctx context.Context, evtType, projectID, fieldID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	if err := w.Append(ctx, tx, evtType, projectID, fieldID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
