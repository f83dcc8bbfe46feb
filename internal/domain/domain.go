package domain

// Progress holds the last computed completion percentages for a
// project. Percentages are integers 0-100.
type Progress struct {
	SalesCompletion  int `json:"salesCompletion"`
	LaunchCompletion int `json:"launchCompletion"`
	Overall          int `json:"overall"`
}

// Project is the handover document for one client project. Sales and
// Launch are open value bags keyed by field id; their shapes follow
// the active checklist schema but are never validated against it, so
// documents survive schema changes.
type Project struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Client         string         `json:"client,omitempty"`
	Status         string         `json:"status" enum:"draft,in_handover,launched,archived"`
	Sales          map[string]any `json:"sales,omitempty"`
	Launch         map[string]any `json:"launch,omitempty"`
	Version        int            `json:"version"`
	VersionHistory []int          `json:"versionHistory,omitempty"`
	Progress       Progress       `json:"progress"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// Bag returns the value bag for one checklist side.
func (p *Project) Bag(kind string) map[string]any {
	if kind == "launch" {
		return p.Launch
	}
	return p.Sales
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
	FieldID   string `json:"field_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	Payload   string `json:"payload_json"`
}
