package service

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/entitlement"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/stats"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

const maxTitleLength = 255

// ContainerDraft is the input for creating a container
type ContainerDraft struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Type          model.ContainerType `json:"type"`
	Industry      string              `json:"industry"`
	Department    string              `json:"department"`
	Visibility    model.Visibility    `json:"visibility"`
	Tags          []string            `json:"tags"`
	URL           string              `json:"url"`
	IsMarketplace bool                `json:"is_marketplace"`
}

// ContainerPatch is a partial container update. Nil fields are left alone.
// Type may only repeat the current type; Views may never be set.
type ContainerPatch struct {
	Title         *string              `json:"title"`
	Description   *string              `json:"description"`
	Type          *model.ContainerType `json:"type"`
	Industry      *string              `json:"industry"`
	Department    *string              `json:"department"`
	Visibility    *model.Visibility    `json:"visibility"`
	Tags          *[]string            `json:"tags"`
	URL           *string              `json:"url"`
	IsMarketplace *bool                `json:"is_marketplace"`
	Views         *int64               `json:"views"`
}

func validTitle(v *ValidationError, title string) {
	switch t := strings.TrimSpace(title); {
	case t == "":
		v.add("title", "is required")
	case utf8.RuneCountInString(t) > maxTitleLength:
		v.add("title", "must be at most 255 characters")
	}
}

func validURL(v *ValidationError, raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		v.add("url", "must be an absolute http or https URL")
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (d ContainerDraft) validate() error {
	v := &ValidationError{}
	validTitle(v, d.Title)
	if !d.Type.Valid() {
		v.add("type", "must be one of app, voice, workflow")
	}
	if d.Visibility != "" && !d.Visibility.Valid() {
		v.add("visibility", "must be one of public, restricted, admin_only")
	}
	validURL(v, d.URL)
	return v.err()
}

func (p ContainerPatch) validate() error {
	v := &ValidationError{}
	if p.Title != nil {
		validTitle(v, *p.Title)
	}
	if p.Type != nil && !p.Type.Valid() {
		v.add("type", "must be one of app, voice, workflow")
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		v.add("visibility", "must be one of public, restricted, admin_only")
	}
	if p.URL != nil {
		validURL(v, *p.URL)
	}
	if p.Views != nil {
		v.add("views", "is only changed by recording a view")
	}
	return v.err()
}

// apply copies the set fields onto c
func (p ContainerPatch) apply(c *model.Container) {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Industry != nil {
		c.Industry = *p.Industry
	}
	if p.Department != nil {
		c.Department = *p.Department
	}
	if p.Visibility != nil {
		c.Visibility = *p.Visibility
	}
	if p.Tags != nil {
		c.Tags = cleanTags(*p.Tags)
	}
	if p.URL != nil && strings.TrimSpace(*p.URL) != c.URL {
		c.URL = strings.TrimSpace(*p.URL)
		c.URLStatus = model.URLStatusUnknown
		c.URLLastChecked = nil
		c.URLCheckError = ""
	}
	if p.IsMarketplace != nil {
		c.IsMarketplace = *p.IsMarketplace
	}
}

// ListContainers returns the containers matching filter that the actor may view
func (s *Service) ListContainers(ctx context.Context, actorID string, filter store.ContainerFilter) ([]model.Container, error) {
	log := logger.FromCtx(ctx)
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalid("type", "must be one of app, voice, workflow")
	}
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return nil, err
	}

	var visible []model.Container
	err := s.store.ReadSnapshot(ctx, func(r store.Reader) error {
		candidates, err := r.ListContainers(ctx, filter)
		if err != nil {
			return err
		}
		v, err := loadViewer(ctx, r, actorID, candidates...)
		if err != nil {
			return err
		}
		visible = make([]model.Container, 0, len(candidates))
		for _, c := range candidates {
			if v.canView(c) {
				visible = append(visible, c)
			}
		}
		log.Debug("Filtered containers by entitlement",
			zap.Int("candidates", len(candidates)),
			zap.Int("visible", len(visible)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	prometheus.RecordContainerOperation("list")
	return visible, nil
}

// GetContainer returns one container the actor may view
func (s *Service) GetContainer(ctx context.Context, actorID, id string) (*model.Container, error) {
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return nil, err
	}

	var out *model.Container
	err := s.store.ReadSnapshot(ctx, func(r store.Reader) error {
		c, err := r.GetContainer(ctx, id)
		if err != nil {
			return fromStore(err, "container", id)
		}
		v, err := loadViewer(ctx, r, actorID, *c)
		if err != nil {
			return err
		}
		if d := v.evaluate(*c); !d.Allowed {
			return denyView(ctx, d, id)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordContainerOperation("get")
	return out, nil
}

// GetStats aggregates the containers of one audience.
// The global scope is reserved for global admins and counts everything;
// the company scope counts what the actor can view and the actor's
// company members.
func (s *Service) GetStats(ctx context.Context, actorID string, scope model.StatsScope) (*model.ContainerStats, error) {
	if scope == "" {
		scope = model.StatsScopeCompany
	}
	if !scope.Valid() {
		return nil, invalid("scope", "must be global or company")
	}
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return nil, err
	}

	var out model.ContainerStats
	err := s.store.ReadSnapshot(ctx, func(r store.Reader) error {
		all, err := r.ListContainers(ctx, store.ContainerFilter{})
		if err != nil {
			return err
		}
		v, err := loadViewer(ctx, r, actorID, all...)
		if err != nil {
			return err
		}

		if scope == model.StatsScopeGlobal {
			if !entitlement.IsGlobalAdmin(v.User) {
				return denyManage(ctx, "global_stats", zap.String("user_id", actorID))
			}
			users, err := r.ListUsers(ctx, nil)
			if err != nil {
				return err
			}
			out = stats.Compute(scope, all, users)
			return nil
		}

		visible := make([]model.Container, 0, len(all))
		for _, c := range all {
			if v.canView(c) {
				visible = append(visible, c)
			}
		}
		var members []model.User
		if v.User.CompanyID != nil {
			if members, err = r.ListUsers(ctx, v.User.CompanyID); err != nil {
				return err
			}
		}
		out = stats.Compute(scope, visible, members)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateContainer validates the draft and stores it with the actor as creator.
// Marketplace containers are admin-only, and the actor must hold the
// capability for the draft's type.
func (s *Service) CreateContainer(ctx context.Context, actorID string, draft ContainerDraft) (*model.Container, error) {
	log := logger.FromCtx(ctx)
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	if draft.IsMarketplace && !actor.User.IsAdmin() {
		return nil, denyManage(ctx, "create_marketplace_container", zap.String("user_id", actorID))
	}
	if !actor.AllowsType(draft.Type) {
		prometheus.RecordDenial("create", string(entitlement.ReasonCapability))
		log.Warn("Container create denied",
			zap.String("user_id", actorID),
			zap.String("reason", string(entitlement.ReasonCapability)))
		return nil, forbidden("no capability for %s containers", draft.Type)
	}

	visibility := draft.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	c := model.Container{
		Title:         strings.TrimSpace(draft.Title),
		Description:   draft.Description,
		Type:          draft.Type,
		Industry:      draft.Industry,
		Department:    draft.Department,
		Visibility:    visibility,
		Tags:          cleanTags(draft.Tags),
		URL:           strings.TrimSpace(draft.URL),
		URLStatus:     model.URLStatusUnknown,
		IsMarketplace: draft.IsMarketplace,
		CreatedBy:     actorID,
	}
	if err := s.store.CreateContainer(ctx, &c); err != nil {
		log.Error("Failed to create container", zap.String("title", c.Title), zap.Error(err))
		return nil, fromStore(err, "container", c.ID)
	}

	prometheus.RecordContainerOperation("create")
	log.Info("Container created",
		zap.String("container_id", c.ID),
		zap.String("type", string(c.Type)),
		zap.String("visibility", string(c.Visibility)),
		zap.Bool("marketplace", c.IsMarketplace))
	return &c, nil
}

// UpdateContainer applies patch to a container the actor may mutate.
// The decision is taken on the locked row, so it sees the latest owner.
func (s *Service) UpdateContainer(ctx context.Context, actorID, id string, patch ContainerPatch) (*model.Container, error) {
	log := logger.FromCtx(ctx)
	if err := patch.validate(); err != nil {
		return nil, err
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateContainer(ctx, id, func(c *model.Container) error {
		if !entitlement.CanMutate(actor.User, *c) {
			return denyMutate(ctx, id)
		}
		if patch.Type != nil && *patch.Type != c.Type {
			return invalid("type", "cannot be changed after creation")
		}
		if patch.IsMarketplace != nil && *patch.IsMarketplace && !c.IsMarketplace && !actor.User.IsAdmin() {
			return denyManage(ctx, "publish_to_marketplace", zap.String("container_id", id))
		}
		patch.apply(c)
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "container", id)
	}

	prometheus.RecordContainerOperation("update")
	log.Info("Container updated", zap.String("container_id", id))
	return updated, nil
}

// DeleteContainer removes a container the actor may mutate, along with
// its assignments. Marketplace containers need an admin.
func (s *Service) DeleteContainer(ctx context.Context, actorID, id string) error {
	log := logger.FromCtx(ctx)
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}

	err = s.store.DeleteContainer(ctx, id, func(c model.Container) error {
		if !entitlement.CanMutate(actor.User, c) || (c.IsMarketplace && !actor.User.IsAdmin()) {
			return denyMutate(ctx, id)
		}
		return nil
	})
	if err != nil {
		return fromStore(err, "container", id)
	}

	prometheus.RecordContainerOperation("delete")
	log.Info("Container deleted", zap.String("container_id", id))
	return nil
}

// RecordView adds one view to a container the actor may view and returns
// the new count. Viewing needs no mutation right.
func (s *Service) RecordView(ctx context.Context, actorID, id string) (int64, error) {
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return 0, err
	}

	var containerType model.ContainerType
	err := s.store.ReadSnapshot(ctx, func(r store.Reader) error {
		c, err := r.GetContainer(ctx, id)
		if err != nil {
			return fromStore(err, "container", id)
		}
		v, err := loadViewer(ctx, r, actorID, *c)
		if err != nil {
			return err
		}
		if d := v.evaluate(*c); !d.Allowed {
			return denyView(ctx, d, id)
		}
		containerType = c.Type
		return nil
	})
	if err != nil {
		return 0, err
	}

	views, err := s.store.IncrementViews(ctx, id)
	if err != nil {
		return 0, fromStore(err, "container", id)
	}
	prometheus.RecordView(string(containerType))
	return views, nil
}
