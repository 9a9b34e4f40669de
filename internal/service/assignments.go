package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/entitlement"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// AssignContainerToCompany records that the company acquired the
// container. Assigning an existing pair returns the existing record.
//
// Global admins may assign any container to any company. A company admin
// may acquire, for their own company, marketplace containers they can view.
func (s *Service) AssignContainerToCompany(ctx context.Context, actorID, companyID, containerID string) (*model.CompanyContainerAssignment, error) {
	log := logger.FromCtx(ctx)
	if err := s.ensurePermission(ctx, actorID); err != nil {
		return nil, err
	}

	err := s.store.ReadSnapshot(ctx, func(r store.Reader) error {
		if _, err := r.GetCompany(ctx, companyID); err != nil {
			return fromStore(err, "company", companyID)
		}
		c, err := r.GetContainer(ctx, containerID)
		if err != nil {
			return fromStore(err, "container", containerID)
		}
		v, err := loadViewer(ctx, r, actorID, *c)
		if err != nil {
			return err
		}
		if entitlement.IsGlobalAdmin(v.User) {
			return nil
		}
		if !entitlement.ManagesCompany(v.User, companyID) || !c.IsMarketplace {
			return denyManage(ctx, "assign_container",
				zap.String("company_id", companyID),
				zap.String("container_id", containerID))
		}
		if d := v.evaluate(*c); !d.Allowed {
			return denyView(ctx, d, containerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a, created, err := s.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{
		CompanyID:   companyID,
		ContainerID: containerID,
		AssignedBy:  actorID,
	})
	if err != nil {
		return nil, fromStore(err, "company or container", companyID+"/"+containerID)
	}

	outcome := "existing"
	if created {
		outcome = "created"
	}
	prometheus.RecordAssignmentOperation("assign", outcome)
	log.Info("Container assigned to company",
		zap.String("company_id", companyID),
		zap.String("container_id", containerID),
		zap.String("outcome", outcome))
	return a, nil
}

// RevokeContainerFromCompany deletes the assignment if present. Revoking
// a pair that is not assigned succeeds.
func (s *Service) RevokeContainerFromCompany(ctx context.Context, actorID, companyID, containerID string) error {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if !entitlement.ManagesCompany(actor.User, companyID) {
		return denyManage(ctx, "revoke_container",
			zap.String("company_id", companyID),
			zap.String("container_id", containerID))
	}

	deleted, err := s.store.DeleteAssignment(ctx, companyID, containerID)
	if err != nil {
		return err
	}

	outcome := "noop"
	if deleted {
		outcome = "deleted"
	}
	prometheus.RecordAssignmentOperation("revoke", outcome)
	logger.FromCtx(ctx).Info("Container revoked from company",
		zap.String("company_id", companyID),
		zap.String("container_id", containerID),
		zap.String("outcome", outcome))
	return nil
}

// ListCompanyAssignments lists what a company has acquired
func (s *Service) ListCompanyAssignments(ctx context.Context, actorID, companyID string) ([]model.CompanyContainerAssignment, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !entitlement.ManagesCompany(actor.User, companyID) && !actor.User.InCompany(companyID) {
		return nil, denyManage(ctx, "list_assignments", zap.String("company_id", companyID))
	}
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, fromStore(err, "company", companyID)
	}
	return s.store.ListAssignmentsByCompany(ctx, companyID)
}
