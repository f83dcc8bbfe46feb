package handoversdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Handover HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Progress holds the computed completion percentages.
type Progress struct {
	SalesCompletion  int `json:"salesCompletion"`
	LaunchCompletion int `json:"launchCompletion"`
	Overall          int `json:"overall"`
}

// Project represents the API project model.
type Project struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Client         string         `json:"client,omitempty"`
	Status         string         `json:"status"`
	Sales          map[string]any `json:"sales"`
	Launch         map[string]any `json:"launch"`
	Version        int            `json:"version"`
	VersionHistory []int          `json:"versionHistory"`
	Progress       Progress       `json:"progress"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

// Versions is the reconciled version listing.
type Versions struct {
	Current  int   `json:"current"`
	Versions []int `json:"versions"`
}

// Report is a rendered handover report.
type Report struct {
	Format  string `json:"format"`
	Content string `json:"content"`
	Overall int    `json:"overall"`
}

// Event represents a log entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	FieldID   string         `json:"field_id"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project and points the client at it.
func (c *Client) CreateProject(ctx context.Context, id, name, client string) (Project, error) {
	body := map[string]any{
		"id":     id,
		"name":   name,
		"client": client,
	}
	var resp Project
	if err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp); err != nil {
		return resp, err
	}
	c.ProjectID = resp.ID
	return resp, nil
}

// GetProject fetches the client's project.
func (c *Client) GetProject(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(""), nil, &resp)
	return resp, err
}

// SetField writes one checklist field value.
func (c *Client) SetField(ctx context.Context, checklist, fieldID string, value any) (Project, error) {
	body := map[string]any{"value": value}
	var resp Project
	endpoint := c.projectPath(fmt.Sprintf("checklists/%s/fields/%s", url.PathEscape(checklist), url.PathEscape(fieldID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// SetNotRelevant flags a field in or out of the completion ratio.
func (c *Client) SetNotRelevant(ctx context.Context, checklist, fieldID string, flag bool) (Project, error) {
	body := map[string]any{"notRelevant": flag}
	var resp Project
	endpoint := c.projectPath(fmt.Sprintf("checklists/%s/fields/%s/not-relevant", url.PathEscape(checklist), url.PathEscape(fieldID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// SetRequirement checks or unchecks one integration requirement.
func (c *Client) SetRequirement(ctx context.Context, checklist, fieldID, integrationID, requirement string, checked bool) (Project, error) {
	body := map[string]any{
		"integration_id": integrationID,
		"requirement":    requirement,
		"checked":        checked,
	}
	var resp Project
	endpoint := c.projectPath(fmt.Sprintf("checklists/%s/fields/%s/requirements", url.PathEscape(checklist), url.PathEscape(fieldID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// SetSelectionMeta tags a selected integration with a status and/or
// version.
func (c *Client) SetSelectionMeta(ctx context.Context, checklist, fieldID, integrationID, status string, version int) (Project, error) {
	body := map[string]any{
		"integration_id": integrationID,
		"status":         status,
		"version":        version,
	}
	var resp Project
	endpoint := c.projectPath(fmt.Sprintf("checklists/%s/fields/%s/selection-meta", url.PathEscape(checklist), url.PathEscape(fieldID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// Progress computes completion percentages; save persists them.
func (c *Client) Progress(ctx context.Context, save bool) (Progress, error) {
	endpoint := c.projectPath("progress")
	if save {
		endpoint += "?save=true"
	}
	var resp Progress
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Versions lists the reconciled version history.
func (c *Client) Versions(ctx context.Context) (Versions, error) {
	var resp Versions
	err := c.do(ctx, http.MethodGet, c.projectPath("versions"), nil, &resp)
	return resp, err
}

// AdvanceVersion moves the current version forward. to == 0 means
// current+1.
func (c *Client) AdvanceVersion(ctx context.Context, to int) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath("versions/advance"), map[string]any{"to": to}, &resp)
	return resp, err
}

// DeleteVersion removes a non-current version from the history.
func (c *Client) DeleteVersion(ctx context.Context, version int) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodDelete, c.projectPath(fmt.Sprintf("versions/%d", version)), nil, &resp)
	return resp, err
}

// VersionView returns the launch collections filtered to one version.
func (c *Client) VersionView(ctx context.Context, version int) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, c.projectPath(fmt.Sprintf("versions/%d/view", version)), nil, &resp)
	return resp, err
}

// Report renders the handover report; format is "markdown" or "email".
func (c *Client) Report(ctx context.Context, format string) (Report, error) {
	endpoint := c.projectPath("report")
	if format != "" {
		endpoint += "?format=" + url.QueryEscape(format)
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events for the client's project.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	if p == "" {
		return fmt.Sprintf("v0/projects/%s", project)
	}
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
