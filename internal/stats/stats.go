// Package stats aggregates container counts over a snapshot.
//
// Compute counts exactly what it is given. Deciding which containers and
// users belong to an audience is the caller's job; global and per-company
// figures are two calls over two different inputs.
package stats

import (
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

// Compute derives ContainerStats from one consistent snapshot.
//
// ActiveUsers counts the users in users that created at least one of the
// given containers. Views are an anonymous counter, so they cannot be
// attributed to users.
//
// A container whose type or visibility is not a known value is skipped
// entirely, so the type and visibility partitions always sum to
// TotalContainers.
func Compute(scope model.StatsScope, containers []model.Container, users []model.User) model.ContainerStats {
	out := model.ContainerStats{Scope: scope}

	creators := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		if !c.Type.Valid() || !c.Visibility.Valid() {
			continue
		}
		out.TotalContainers++
		out.TotalViews += c.Views
		creators[c.CreatedBy] = struct{}{}

		switch c.Type {
		case model.ContainerTypeApp:
			out.Apps++
		case model.ContainerTypeVoice:
			out.Voices++
		case model.ContainerTypeWorkflow:
			out.Workflows++
		}

		switch c.Visibility {
		case model.VisibilityPublic:
			out.Public++
		case model.VisibilityRestricted:
			out.Restricted++
		case model.VisibilityAdminOnly:
			out.AdminOnly++
		}

		if c.IsMarketplace {
			out.Marketplace++
		}
	}

	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		if _, ok := creators[u.ID]; ok {
			out.ActiveUsers++
		}
	}

	return out
}
