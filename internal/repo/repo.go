package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"handover/internal/domain"
	"handover/internal/integrations"
	"handover/internal/schema"
)

// Config document names in config_docs.
const (
	DocChecklist    = "checklist"
	DocIntegrations = "integrations"
)

var ErrNotFound = errors.New("not found")

// Repo stores whole project documents as JSON blobs. Partial updates
// go through read-modify-write on the decoded map so keys this code
// does not know about survive a round-trip.
type Repo struct {
	DB    *sql.DB
	cache *lru.Cache[string, []byte]
}

func New(db *sql.DB) Repo {
	// Two config docs plus headroom; reads hit on every recompute.
	cache, _ := lru.New[string, []byte](8)
	return Repo{DB: db, cache: cache}
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO projects(id,doc_json,created_at,updated_at) VALUES (?,?,?,?)`,
		p.ID, string(payload), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	payload, err := r.projectPayload(ctx, id)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decode project %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// GetProjectDoc returns the raw decoded document, preserving keys the
// typed Project struct does not model.
func (r Repo) GetProjectDoc(ctx context.Context, id string) (map[string]any, error) {
	payload, err := r.projectPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return doc, nil
}

func (r Repo) projectPayload(ctx context.Context, id string) ([]byte, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM projects WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// PutProjectDoc writes the whole document back. Callers are expected
// to have read the current document first; last writer wins.
func (r Repo) PutProjectDoc(ctx context.Context, id string, doc map[string]any, updatedAt string) error {
	doc["updated_at"] = updatedAt
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET doc_json=?, updated_at=? WHERE id=?`, string(payload), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeProjectDoc overlays the patch's top-level keys onto the stored
// document and writes it back.
func (r Repo) MergeProjectDoc(ctx context.Context, id string, patch map[string]any, updatedAt string) (map[string]any, error) {
	doc, err := r.GetProjectDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		doc[k] = v
	}
	if err := r.PutProjectDoc(ctx, id, doc, updatedAt); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r Repo) UpdateProgress(ctx context.Context, id string, p domain.Progress, updatedAt string) error {
	_, err := r.MergeProjectDoc(ctx, id, map[string]any{"progress": p}, updatedAt)
	return err
}

func (r Repo) UpdateVersionState(ctx context.Context, id string, version int, history []int, updatedAt string) error {
	_, err := r.MergeProjectDoc(ctx, id, map[string]any{"version": version, "versionHistory": history}, updatedAt)
	return err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,doc_json FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var p domain.Project
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", id, err)
		}
		if p.ID == "" {
			p.ID = id
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) getConfigDoc(ctx context.Context, name string) ([]byte, error) {
	if r.cache != nil {
		if payload, ok := r.cache.Get(name); ok {
			return payload, nil
		}
	}
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM config_docs WHERE name=?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(name, []byte(payload))
	}
	return []byte(payload), nil
}

func (r Repo) putConfigDoc(ctx context.Context, name string, payload []byte, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO config_docs(name,doc_json,updated_at) VALUES (?,?,?)
ON CONFLICT(name) DO UPDATE SET doc_json=excluded.doc_json, updated_at=excluded.updated_at`, name, string(payload), updatedAt)
	if err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Remove(name)
	}
	return nil
}

// ChecklistConfig returns the stored checklist schema, or the built-in
// default when none has been saved yet.
func (r Repo) ChecklistConfig(ctx context.Context) (*schema.Config, error) {
	payload, err := r.getConfigDoc(ctx, DocChecklist)
	if errors.Is(err, ErrNotFound) {
		return schema.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg, err := schema.FromJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("stored checklist config: %w", err)
	}
	return cfg, nil
}

func (r Repo) PutChecklistConfig(ctx context.Context, cfg *schema.Config, updatedAt string) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.putConfigDoc(ctx, DocChecklist, payload, updatedAt)
}

// Catalog returns the integrations catalog; an empty catalog is not
// an error, selections just gate on nothing.
func (r Repo) Catalog(ctx context.Context) (integrations.Catalog, error) {
	payload, err := r.getConfigDoc(ctx, DocIntegrations)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cat integrations.Catalog
	if err := json.Unmarshal(payload, &cat); err != nil {
		return nil, fmt.Errorf("stored integrations catalog: %w", err)
	}
	return cat, nil
}

func (r Repo) PutCatalog(ctx context.Context, cat integrations.Catalog, updatedAt string) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	return r.putConfigDoc(ctx, DocIntegrations, payload, updatedAt)
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, fieldID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, fieldID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectID, evtType, fieldID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if fieldID != "" {
		clauses = append(clauses, "field_id=?")
		args = append(args, fieldID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,field_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, fieldID, actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &fieldID, &actorID, &e.Payload); err != nil {
			return nil, err
		}
		e.ProjectID = projectID.String
		e.FieldID = fieldID.String
		e.ActorID = actorID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,field_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, fieldID, actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &fieldID, &actorID, &e.Payload); err != nil {
			return nil, err
		}
		e.ProjectID = projectID.String
		e.FieldID = fieldID.String
		e.ActorID = actorID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE project_id=?`, projectID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
