// Package service implements the marketplace operations on top of a Store.
//
// Every operation reloads the acting user, their permission row and their
// company's assignments before deciding, so a decision never rests on
// state older than the request.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/entitlement"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// Service holds the marketplace operations
type Service struct {
	store store.Store
}

// New returns a Service backed by st
func New(st store.Store) *Service {
	return &Service{store: st}
}

// viewer is an actor plus the creators of the containers being judged
type viewer struct {
	entitlement.Actor
	owners map[string]model.User
}

func (v viewer) evaluate(c model.Container) entitlement.Decision {
	var ownerCompany *string
	if owner, ok := v.owners[c.CreatedBy]; ok {
		ownerCompany = owner.CompanyID
	}
	return entitlement.EvaluateView(v.Actor, c, ownerCompany)
}

func (v viewer) canView(c model.Container) bool {
	return v.evaluate(c).Allowed
}

// ensurePermission creates the default permission row on first use.
// An unknown actor id means the credentials outlived the user.
func (s *Service) ensurePermission(ctx context.Context, actorID string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}
	if _, err := s.store.EnsureUserPermission(ctx, actorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		return err
	}
	return nil
}

// loadActor reads the actor inside r
func loadActor(ctx context.Context, r store.Reader, actorID string) (entitlement.Actor, error) {
	user, err := r.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return entitlement.Actor{}, ErrUnauthenticated
		}
		return entitlement.Actor{}, err
	}
	actor := entitlement.Actor{User: *user}

	perm, err := r.GetUserPermission(ctx, actorID)
	switch {
	case err == nil:
		actor.Permission = perm
	case !errors.Is(err, store.ErrNotFound):
		return entitlement.Actor{}, err
	}

	if user.CompanyID != nil {
		actor.Assignments, err = r.ListAssignmentsByCompany(ctx, *user.CompanyID)
		if err != nil {
			return entitlement.Actor{}, err
		}
	}
	return actor, nil
}

// loadViewer reads the actor and the creators of containers inside r
func loadViewer(ctx context.Context, r store.Reader, actorID string, containers ...model.Container) (viewer, error) {
	actor, err := loadActor(ctx, r, actorID)
	if err != nil {
		return viewer{}, err
	}
	ids := make([]string, 0, len(containers))
	seen := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		if _, ok := seen[c.CreatedBy]; ok {
			continue
		}
		seen[c.CreatedBy] = struct{}{}
		ids = append(ids, c.CreatedBy)
	}
	owners, err := r.GetUsers(ctx, ids)
	if err != nil {
		return viewer{}, err
	}
	return viewer{Actor: actor, owners: owners}, nil
}

// actor loads the acting user outside any snapshot
func (s *Service) actor(ctx context.Context, actorID string) (entitlement.Actor, error) {
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return entitlement.Actor{}, err
	}
	return loadActor(ctx, s.store, actorID)
}

func denyView(ctx context.Context, d entitlement.Decision, containerID string) error {
	prometheus.RecordDenial("view", string(d.Reason))
	logger.FromCtx(ctx).Warn("Container view denied",
		zap.String("container_id", containerID),
		zap.String("reason", string(d.Reason)))
	return forbidden("container %s: %s", containerID, d.Reason)
}

func denyManage(ctx context.Context, action string, fields ...zap.Field) error {
	prometheus.RecordDenial("manage", action)
	logger.FromCtx(ctx).Warn("Management action denied", append(fields, zap.String("action", action))...)
	return forbidden("%s not permitted", action)
}

func denyMutate(ctx context.Context, containerID string) error {
	prometheus.RecordDenial("mutate", "not_owner")
	logger.FromCtx(ctx).Warn("Container change denied", zap.String("container_id", containerID))
	return forbidden("container %s: not owner", containerID)
}
