package server

import (
	"encoding/json"

	"handover/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Client  string `json:"client,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type UpdateProjectRequest struct {
	Status  string `json:"status" enum:"draft,in_handover,launched,archived"`
	ActorID string `json:"actor_id,omitempty"`
}

type SetFieldRequest struct {
	Value   any    `json:"value"`
	ActorID string `json:"actor_id,omitempty"`
}

type NotRelevantRequest struct {
	NotRelevant bool   `json:"notRelevant"`
	ActorID     string `json:"actor_id,omitempty"`
}

type RequirementStatusRequest struct {
	IntegrationID string `json:"integration_id"`
	Requirement   string `json:"requirement"`
	Checked       bool   `json:"checked"`
	ActorID       string `json:"actor_id,omitempty"`
}

type SelectionMetaRequest struct {
	IntegrationID string `json:"integration_id"`
	Status        string `json:"status,omitempty"`
	Version       int    `json:"version,omitempty" minimum:"0"`
	ActorID       string `json:"actor_id,omitempty"`
}

type AdvanceVersionRequest struct {
	To      int    `json:"to,omitempty" minimum:"0"`
	ActorID string `json:"actor_id,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Client         string           `json:"client,omitempty"`
	Status         string           `json:"status" enum:"draft,in_handover,launched,archived"`
	Sales          map[string]any   `json:"sales"`
	Launch         map[string]any   `json:"launch"`
	Version        int              `json:"version"`
	VersionHistory []int            `json:"versionHistory"`
	Progress       ProgressResponse `json:"progress"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
	UpdatedAt      string           `json:"updated_at" format:"date-time"`
}

type ProgressResponse struct {
	SalesCompletion  int `json:"salesCompletion" minimum:"0" maximum:"100"`
	LaunchCompletion int `json:"launchCompletion" minimum:"0" maximum:"100"`
	Overall          int `json:"overall" minimum:"0" maximum:"100"`
}

type VersionsResponse struct {
	Current  int   `json:"current"`
	Versions []int `json:"versions"`
}

type ReportResponse struct {
	Format  string `json:"format" enum:"markdown,email"`
	Content string `json:"content"`
	Overall int    `json:"overall" minimum:"0" maximum:"100"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id,omitempty"`
	FieldID   string         `json:"field_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Client:         p.Client,
		Status:         p.Status,
		Sales:          nonNilMap(p.Sales),
		Launch:         nonNilMap(p.Launch),
		Version:        p.Version,
		VersionHistory: nonNilSlice(p.VersionHistory),
		Progress:       progressResponse(p.Progress),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func progressResponse(p domain.Progress) ProgressResponse {
	return ProgressResponse(p)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		ProjectID: e.ProjectID,
		FieldID:   e.FieldID,
		ActorID:   e.ActorID,
		Payload:   decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
