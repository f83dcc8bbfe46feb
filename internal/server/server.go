package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"handover/internal/domain"
	"handover/internal/engine"
	"handover/internal/integrations"
	"handover/internal/repo"
	"handover/internal/schema"
	"handover/internal/versions"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Handover API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Handover API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerFields(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerVersions(group, cfg.Engine)
	registerReport(group, cfg.Engine)
	registerConfigDocs(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownField):
		return newAPIError(http.StatusNotFound, "unknown_field", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownChecklist):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, versions.ErrCurrentVersion):
		return newAPIError(http.StatusConflict, "current_version", err.Error(), nil)
	case errors.Is(err, versions.ErrUnknownVersion):
		return newAPIError(http.StatusUnprocessableEntity, "unknown_version", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "duplicate"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := e.CreateProject(ctx, input.Body.ID, input.Body.Name, input.Body.Client, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		p, err := e.UpdateProjectStatus(ctx, input.ProjectID, input.Body.Status, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID, ""); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerFields(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-field-value",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/checklists/{kind}/fields/{field_id}",
		Summary:     "Set field value",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Kind      string          `path:"kind" enum:"sales,launch"`
		FieldID   string          `path:"field_id"`
		Body      SetFieldRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.SetFieldValue(ctx, input.ProjectID, input.Kind, input.FieldID, input.Body.Value, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-field-not-relevant",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/checklists/{kind}/fields/{field_id}/not-relevant",
		Summary:     "Flag field not relevant",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Kind      string             `path:"kind" enum:"sales,launch"`
		FieldID   string             `path:"field_id"`
		Body      NotRelevantRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.SetNotRelevant(ctx, input.ProjectID, input.Kind, input.FieldID, input.Body.NotRelevant, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-requirement-status",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/checklists/{kind}/fields/{field_id}/requirements",
		Summary:     "Check off an integration requirement",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Kind      string                   `path:"kind" enum:"sales,launch"`
		FieldID   string                   `path:"field_id"`
		Body      RequirementStatusRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.IntegrationID == "" || input.Body.Requirement == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "integration_id and requirement are required", nil)
		}
		p, err := e.SetRequirementStatus(ctx, input.ProjectID, input.Kind, input.FieldID,
			input.Body.IntegrationID, input.Body.Requirement, input.Body.Checked, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-selection-meta",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/checklists/{kind}/fields/{field_id}/selection-meta",
		Summary:     "Tag a selected integration with status or version",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Kind      string               `path:"kind" enum:"sales,launch"`
		FieldID   string               `path:"field_id"`
		Body      SelectionMetaRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.IntegrationID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "integration_id is required", nil)
		}
		if input.Body.Status == "" && input.Body.Version <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status or version is required", nil)
		}
		p, err := e.SetSelectionMeta(ctx, input.ProjectID, input.Kind, input.FieldID,
			input.Body.IntegrationID, input.Body.Status, input.Body.Version, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Compute progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Save      bool   `query:"save"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		var (
			p   domain.Progress
			err error
		)
		if input.Save {
			p, err = e.RecomputeAndSave(ctx, input.ProjectID, "")
		} else {
			p, err = e.Progress(ctx, input.ProjectID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(p)}, nil
	})
}

func registerVersions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-versions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/versions",
		Summary:     "List reconciled versions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body VersionsResponse `json:"body"`
	}, error) {
		list, err := e.Versions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VersionsResponse `json:"body"`
		}{Body: VersionsResponse{Current: p.Version, Versions: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-version",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/versions/advance",
		Summary:     "Advance current version",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      AdvanceVersionRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.AdvanceVersion(ctx, input.ProjectID, input.Body.To, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-version",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/versions/{version}",
		Summary:     "Delete a version",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Version   int    `path:"version"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.DeleteVersion(ctx, input.ProjectID, input.Version, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "version-view",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/versions/{version}/view",
		Summary:     "Version-filtered launch collections",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Version   int    `path:"version"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		view, err := e.VersionView(ctx, input.ProjectID, input.Version)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: view}, nil
	})
}

func registerReport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/report",
		Summary:     "Render handover report",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Format    string `query:"format" default:"markdown" enum:"markdown,email"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		r, err := e.Report(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		format := input.Format
		if format == "" {
			format = "markdown"
		}
		var content string
		switch format {
		case "markdown":
			content, err = r.Markdown()
		case "email":
			content, err = r.EmailDraft()
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid format", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: ReportResponse{Format: format, Content: content, Overall: r.Overall}}, nil
	})
}

func registerConfigDocs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-checklist-config",
		Method:      http.MethodGet,
		Path:        "/config/checklist",
		Summary:     "Get checklist schema",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body schema.Config `json:"body"`
	}, error) {
		cfg, err := e.ChecklistConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body schema.Config `json:"body"`
		}{Body: *cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-checklist-config",
		Method:      http.MethodPut,
		Path:        "/config/checklist",
		Summary:     "Replace checklist schema",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body schema.Config `json:"body"`
	}) (*struct {
		Body schema.Config `json:"body"`
	}, error) {
		cfg := input.Body
		if err := e.PutChecklistConfig(ctx, &cfg, ""); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body schema.Config `json:"body"`
		}{Body: cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-integrations-catalog",
		Method:      http.MethodGet,
		Path:        "/config/integrations",
		Summary:     "Get integrations catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []integrations.Record `json:"body"`
	}, error) {
		cat, err := e.Catalog(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if cat == nil {
			cat = integrations.Catalog{}
		}
		return &struct {
			Body []integrations.Record `json:"body"`
		}{Body: cat}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-integrations-catalog",
		Method:      http.MethodPut,
		Path:        "/config/integrations",
		Summary:     "Replace integrations catalog",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body []integrations.Record `json:"body"`
	}) (*struct {
		Body []integrations.Record `json:"body"`
	}, error) {
		if err := e.PutCatalog(ctx, integrations.Catalog(input.Body), ""); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []integrations.Record `json:"body"`
		}{Body: input.Body}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List a project's events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.ProjectID, input.Type, "")
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEvents(ctx, limit, input.ProjectID, input.Type, "")
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
