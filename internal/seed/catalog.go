// Package seed loads a YAML catalog of companies, users and marketplace
// containers into a store.
//
// Entries refer to each other by key, not by id, so a catalog can be
// applied to an empty store of any driver.
package seed

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/service"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
)

// Catalog is the seed file layout
type Catalog struct {
	Companies   []CompanySpec    `yaml:"companies"`
	Users       []UserSpec       `yaml:"users"`
	Containers  []ContainerSpec  `yaml:"containers"`
	Assignments []AssignmentSpec `yaml:"assignments"`
}

// CompanySpec describes one company
type CompanySpec struct {
	Key              string `yaml:"key"`
	Name             string `yaml:"name"`
	Email            string `yaml:"email"`
	SubscriptionTier string `yaml:"subscription_tier"`
	MaxUsers         int    `yaml:"max_users"`
}

// UserSpec describes one user. Company is a company key; Permissions,
// when present, replaces the allow-all default. Password, when set, is
// stored as a bcrypt hash so the user can log in.
type UserSpec struct {
	Key         string           `yaml:"key"`
	Email       string           `yaml:"email"`
	FirstName   string           `yaml:"first_name"`
	LastName    string           `yaml:"last_name"`
	Role        string           `yaml:"role"`
	Company     string           `yaml:"company"`
	Password    string           `yaml:"password"`
	Permissions *PermissionsSpec `yaml:"permissions"`
}

// PermissionsSpec is a capability triple
type PermissionsSpec struct {
	Apps      bool `yaml:"apps"`
	Voices    bool `yaml:"voices"`
	Workflows bool `yaml:"workflows"`
}

// ContainerSpec describes one container. CreatedBy is a user key.
type ContainerSpec struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Industry    string   `yaml:"industry"`
	Department  string   `yaml:"department"`
	Visibility  string   `yaml:"visibility"`
	Tags        []string `yaml:"tags"`
	URL         string   `yaml:"url"`
	Marketplace bool     `yaml:"marketplace"`
	CreatedBy   string   `yaml:"created_by"`
}

// AssignmentSpec links a company key to a container key
type AssignmentSpec struct {
	Company    string `yaml:"company"`
	Container  string `yaml:"container"`
	AssignedBy string `yaml:"assigned_by"`
}

// Result maps catalog keys to the ids the store assigned
type Result struct {
	Companies  map[string]string
	Users      map[string]model.User
	Containers map[string]string
}

// LoadFile reads a catalog from a YAML file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	companies := map[string]bool{}
	for i, co := range c.Companies {
		if co.Key == "" || co.Name == "" {
			return fmt.Errorf("companies[%d]: key and name are required", i)
		}
		if co.SubscriptionTier != "" && !model.SubscriptionTier(co.SubscriptionTier).Valid() {
			return fmt.Errorf("company %s: unknown subscription tier %q", co.Key, co.SubscriptionTier)
		}
		if companies[co.Key] {
			return fmt.Errorf("company %s: duplicate key", co.Key)
		}
		companies[co.Key] = true
	}

	users := map[string]bool{}
	for i, u := range c.Users {
		if u.Key == "" {
			return fmt.Errorf("users[%d]: key is required", i)
		}
		if u.Role != "" && !model.Role(u.Role).Valid() {
			return fmt.Errorf("user %s: unknown role %q", u.Key, u.Role)
		}
		if u.Company != "" && !companies[u.Company] {
			return fmt.Errorf("user %s: unknown company %q", u.Key, u.Company)
		}
		if users[u.Key] {
			return fmt.Errorf("user %s: duplicate key", u.Key)
		}
		users[u.Key] = true
	}

	containers := map[string]bool{}
	for i, ct := range c.Containers {
		if ct.Key == "" || ct.Title == "" {
			return fmt.Errorf("containers[%d]: key and title are required", i)
		}
		if !model.ContainerType(ct.Type).Valid() {
			return fmt.Errorf("container %s: unknown type %q", ct.Key, ct.Type)
		}
		if ct.Visibility != "" && !model.Visibility(ct.Visibility).Valid() {
			return fmt.Errorf("container %s: unknown visibility %q", ct.Key, ct.Visibility)
		}
		if !users[ct.CreatedBy] {
			return fmt.Errorf("container %s: unknown creator %q", ct.Key, ct.CreatedBy)
		}
		if containers[ct.Key] {
			return fmt.Errorf("container %s: duplicate key", ct.Key)
		}
		containers[ct.Key] = true
	}

	for i, a := range c.Assignments {
		if !companies[a.Company] || !containers[a.Container] {
			return fmt.Errorf("assignments[%d]: unknown company %q or container %q", i, a.Company, a.Container)
		}
		if a.AssignedBy != "" && !users[a.AssignedBy] {
			return fmt.Errorf("assignments[%d]: unknown assigner %q", i, a.AssignedBy)
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Apply writes the catalog into st in dependency order
func (c *Catalog) Apply(ctx context.Context, st store.Store, log *zap.Logger) (*Result, error) {
	res := &Result{
		Companies:  make(map[string]string, len(c.Companies)),
		Users:      make(map[string]model.User, len(c.Users)),
		Containers: make(map[string]string, len(c.Containers)),
	}

	for _, spec := range c.Companies {
		tier := model.SubscriptionTier(spec.SubscriptionTier)
		if tier == "" {
			tier = model.TierBasic
		}
		company := model.Company{
			Name:             spec.Name,
			Email:            optional(spec.Email),
			SubscriptionTier: tier,
			MaxUsers:         spec.MaxUsers,
		}
		if err := st.CreateCompany(ctx, &company); err != nil {
			return nil, fmt.Errorf("create company %s: %w", spec.Key, err)
		}
		res.Companies[spec.Key] = company.ID
		log.Info("Seeded company", zap.String("key", spec.Key), zap.String("company_id", company.ID))
	}

	for _, spec := range c.Users {
		role := model.Role(spec.Role)
		if role == "" {
			role = model.RoleViewer
		}
		user := model.User{
			Email:     optional(spec.Email),
			FirstName: spec.FirstName,
			LastName:  spec.LastName,
			Role:      role,
		}
		if spec.Company != "" {
			id := res.Companies[spec.Company]
			user.CompanyID = &id
		}
		if spec.Password != "" {
			hash, err := service.HashPassword(spec.Password)
			if err != nil {
				return nil, fmt.Errorf("password of %s: %w", spec.Key, err)
			}
			user.PasswordHash = hash
		}
		if err := st.CreateUser(ctx, &user); err != nil {
			return nil, fmt.Errorf("create user %s: %w", spec.Key, err)
		}
		if spec.Permissions != nil {
			perms := *spec.Permissions
			_, err := st.UpdateUserPermission(ctx, user.ID, func(p *model.UserPermission) error {
				p.CanAccessApps = perms.Apps
				p.CanAccessVoices = perms.Voices
				p.CanAccessWorkflows = perms.Workflows
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("set permissions of %s: %w", spec.Key, err)
			}
		}
		res.Users[spec.Key] = user
		log.Info("Seeded user", zap.String("key", spec.Key), zap.String("user_id", user.ID))
	}

	for _, spec := range c.Containers {
		visibility := model.Visibility(spec.Visibility)
		if visibility == "" {
			visibility = model.VisibilityPublic
		}
		tags := spec.Tags
		if tags == nil {
			tags = []string{}
		}
		container := model.Container{
			Title:         spec.Title,
			Description:   spec.Description,
			Type:          model.ContainerType(spec.Type),
			Industry:      spec.Industry,
			Department:    spec.Department,
			Visibility:    visibility,
			Tags:          tags,
			URL:           spec.URL,
			URLStatus:     model.URLStatusUnknown,
			IsMarketplace: spec.Marketplace,
			CreatedBy:     res.Users[spec.CreatedBy].ID,
		}
		if err := st.CreateContainer(ctx, &container); err != nil {
			return nil, fmt.Errorf("create container %s: %w", spec.Key, err)
		}
		res.Containers[spec.Key] = container.ID
	}
	log.Info("Seeded containers", zap.Int("count", len(c.Containers)))

	for _, spec := range c.Assignments {
		_, _, err := st.CreateAssignment(ctx, &model.CompanyContainerAssignment{
			CompanyID:   res.Companies[spec.Company],
			ContainerID: res.Containers[spec.Container],
			AssignedBy:  res.Users[spec.AssignedBy].ID,
		})
		if err != nil {
			return nil, fmt.Errorf("assign %s to %s: %w", spec.Container, spec.Company, err)
		}
	}
	return res, nil
}
