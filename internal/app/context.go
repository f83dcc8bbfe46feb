package app

import (
	"context"
	"fmt"

	"handover/internal/repo"
)

// ResolveProject picks the project a CLI command operates on. It
// prefers the explicit override, then a single-project database.
func ResolveProject(ctx context.Context, projectOverride string, r repo.Repo) (string, error) {
	if projectOverride != "" {
		if _, err := r.GetProject(ctx, projectOverride); err != nil {
			return "", err
		}
		return projectOverride, nil
	}
	items, err := r.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	switch len(items) {
	case 0:
		return "", fmt.Errorf("no projects yet; run 'hov project create' first")
	case 1:
		return items[0].ID, nil
	default:
		return "", fmt.Errorf("project not specified; use --project")
	}
}
