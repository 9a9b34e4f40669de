package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/entitlement"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
)

// CompanyDraft is the input for creating a company
type CompanyDraft struct {
	Name             string                 `json:"name"`
	Email            string                 `json:"email"`
	SubscriptionTier model.SubscriptionTier `json:"subscription_tier"`
	// MaxUsers caps the number of members; zero means unlimited.
	MaxUsers int `json:"max_users"`
}

// UserDraft is the input for creating a user
type UserDraft struct {
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
	CompanyID *string    `json:"company_id"`
	// Password is optional; a user without one cannot log in.
	Password string `json:"password"`
}

// PermissionPatch switches capabilities on or off. Nil fields are left alone.
type PermissionPatch struct {
	CanAccessApps      *bool `json:"can_access_apps"`
	CanAccessVoices    *bool `json:"can_access_voices"`
	CanAccessWorkflows *bool `json:"can_access_workflows"`
}

// normalizeEmail returns nil for an empty address
func normalizeEmail(v *ValidationError, raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		v.add("email", "must be a plain email address")
		return nil
	}
	lowered := strings.ToLower(addr.Address)
	return &lowered
}

// CreateCompany registers a tenant. Only global admins may do this.
func (s *Service) CreateCompany(ctx context.Context, actorID string, draft CompanyDraft) (*model.Company, error) {
	log := logger.FromCtx(ctx)
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !entitlement.IsGlobalAdmin(actor.User) {
		return nil, denyManage(ctx, "create_company", zap.String("user_id", actorID))
	}

	v := &ValidationError{}
	if strings.TrimSpace(draft.Name) == "" {
		v.add("name", "is required")
	}
	email := normalizeEmail(v, draft.Email)
	tier := draft.SubscriptionTier
	if tier == "" {
		tier = model.TierBasic
	}
	if !tier.Valid() {
		v.add("subscription_tier", "must be one of basic, premium, enterprise")
	}
	if draft.MaxUsers < 0 {
		v.add("max_users", "must not be negative")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	company := model.Company{
		Name:             strings.TrimSpace(draft.Name),
		Email:            email,
		SubscriptionTier: tier,
		MaxUsers:         draft.MaxUsers,
	}
	if err := s.store.CreateCompany(ctx, &company); err != nil {
		log.Warn("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return nil, fromStore(err, "company email", draft.Email)
	}

	log.Info("Company created",
		zap.String("company_id", company.ID),
		zap.String("tier", string(company.SubscriptionTier)))
	return &company, nil
}

// GetCompany returns a company to its members and to its managers
func (s *Service) GetCompany(ctx context.Context, actorID, id string) (*model.Company, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !entitlement.ManagesCompany(actor.User, id) && !actor.User.InCompany(id) {
		return nil, denyManage(ctx, "get_company", zap.String("company_id", id))
	}
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, fromStore(err, "company", id)
	}
	return company, nil
}

// DeleteCompany removes a company without members. Its assignments go
// with it; a company that still has users is a conflict.
func (s *Service) DeleteCompany(ctx context.Context, actorID, id string) error {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if !entitlement.IsGlobalAdmin(actor.User) {
		return denyManage(ctx, "delete_company", zap.String("company_id", id))
	}
	if err := s.store.DeleteCompany(ctx, id); err != nil {
		return fromStore(err, "company with users", id)
	}
	logger.FromCtx(ctx).Info("Company deleted", zap.String("company_id", id))
	return nil
}

// ListCompanyUsers lists the members of a company
func (s *Service) ListCompanyUsers(ctx context.Context, actorID, companyID string) ([]model.User, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !entitlement.ManagesCompany(actor.User, companyID) && !actor.User.InCompany(companyID) {
		return nil, denyManage(ctx, "list_company_users", zap.String("company_id", companyID))
	}
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, fromStore(err, "company", companyID)
	}
	return s.store.ListUsers(ctx, &companyID)
}

// CreateUser adds a user. Global admins may create any user; company
// admins only members of their own company.
func (s *Service) CreateUser(ctx context.Context, actorID string, draft UserDraft) (*model.User, error) {
	log := logger.FromCtx(ctx)
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if draft.CompanyID != nil && *draft.CompanyID == "" {
		draft.CompanyID = nil
	}
	allowed := entitlement.IsGlobalAdmin(actor.User) ||
		(draft.CompanyID != nil && entitlement.ManagesCompany(actor.User, *draft.CompanyID))
	if !allowed {
		return nil, denyManage(ctx, "create_user", zap.String("user_id", actorID))
	}

	v := &ValidationError{}
	email := normalizeEmail(v, draft.Email)
	role := draft.Role
	if role == "" {
		role = model.RoleViewer
	}
	if !role.Valid() {
		v.add("role", "must be admin or viewer")
	}
	if draft.Password != "" {
		validPassword(v, draft.Password)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var hash string
	if draft.Password != "" {
		if hash, err = HashPassword(draft.Password); err != nil {
			return nil, err
		}
	}
	user := model.User{
		Email:        email,
		FirstName:    strings.TrimSpace(draft.FirstName),
		LastName:     strings.TrimSpace(draft.LastName),
		Role:         role,
		CompanyID:    draft.CompanyID,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		log.Warn("Failed to create user", zap.Error(err))
		if draft.CompanyID != nil {
			return nil, fromStore(err, "company", *draft.CompanyID)
		}
		return nil, fromStore(err, "user email", draft.Email)
	}

	log.Info("User created",
		zap.String("new_user_id", user.ID),
		zap.String("role", string(user.Role)))
	return &user, nil
}

// targetUser loads the user the actor wants to act on. Only global admins
// learn that an id does not exist; for everyone else a missing user and
// an unmanaged one are the same Forbidden.
func (s *Service) targetUser(ctx context.Context, actor model.User, id, action string, allowSelf bool) (*model.User, error) {
	if allowSelf && actor.ID == id {
		return &actor, nil
	}
	if !actor.IsAdmin() {
		return nil, denyManage(ctx, action, zap.String("target_user_id", id))
	}
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && !entitlement.IsGlobalAdmin(actor) {
			return nil, denyManage(ctx, action, zap.String("target_user_id", id))
		}
		return nil, fromStore(err, "user", id)
	}
	if !entitlement.ManagesUser(actor, *target) {
		return nil, denyManage(ctx, action, zap.String("target_user_id", id))
	}
	return target, nil
}

// GetUser returns a user to themself and to their managers
func (s *Service) GetUser(ctx context.Context, actorID, id string) (*model.User, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.targetUser(ctx, actor.User, id, "get_user", true)
}

// DeleteUser removes a user who created no containers. The permission
// row goes with the user.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if _, err := s.targetUser(ctx, actor.User, id, "delete_user", false); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fromStore(err, "user with containers", id)
	}
	logger.FromCtx(ctx).Info("User deleted", zap.String("target_user_id", id))
	return nil
}

// GetUserPermission returns the user's capabilities, creating the
// default row if none exists yet
func (s *Service) GetUserPermission(ctx context.Context, actorID, userID string) (*model.UserPermission, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.targetUser(ctx, actor.User, userID, "get_permission", true); err != nil {
		return nil, err
	}
	p, err := s.store.EnsureUserPermission(ctx, userID)
	if err != nil {
		return nil, fromStore(err, "user", userID)
	}
	return p, nil
}

// SetUserPermission changes a user's capabilities. The actor must be a
// global admin or an admin of the user's company.
func (s *Service) SetUserPermission(ctx context.Context, actorID, userID string, patch PermissionPatch) (*model.UserPermission, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.targetUser(ctx, actor.User, userID, "set_permission", false); err != nil {
		return nil, err
	}

	p, err := s.store.UpdateUserPermission(ctx, userID, func(p *model.UserPermission) error {
		if patch.CanAccessApps != nil {
			p.CanAccessApps = *patch.CanAccessApps
		}
		if patch.CanAccessVoices != nil {
			p.CanAccessVoices = *patch.CanAccessVoices
		}
		if patch.CanAccessWorkflows != nil {
			p.CanAccessWorkflows = *patch.CanAccessWorkflows
		}
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "user", userID)
	}

	logger.FromCtx(ctx).Info("User permission updated",
		zap.String("target_user_id", userID),
		zap.Bool("apps", p.CanAccessApps),
		zap.Bool("voices", p.CanAccessVoices),
		zap.Bool("workflows", p.CanAccessWorkflows))
	return p, nil
}
