// Package store persists the marketplace relations.
//
// Two implementations share the Store interface: Gorm (PostgreSQL) for
// deployments and Memory for local runs and tests. Referential policies
// are the same in both:
//
//   - users -> company: RESTRICT (DeleteCompany fails with ErrConflict)
//   - assignments -> company, container: CASCADE
//   - permission -> user: CASCADE
//   - containers -> creator: RESTRICT (DeleteUser fails with ErrConflict)
package store

import (
	"context"
	"errors"
	"time"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict indicates a unique or referential constraint was violated.
	ErrConflict = errors.New("store: conflict")
	// ErrCompanyFull indicates the company already holds MaxUsers users.
	ErrCompanyFull = errors.New("store: company user limit reached")
)

// ContainerFilter narrows a container listing. Zero values do not filter.
type ContainerFilter struct {
	Type        model.ContainerType
	Search      string
	Industry    string
	Department  string
	Marketplace *bool
}

// URLCheck is the outcome of one URL health check
type URLCheck struct {
	Status    model.URLStatus
	CheckedAt time.Time
	Error     string
}

// Reader is the read side of the store. Inside ReadSnapshot every call
// observes the same state.
type Reader interface {
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUsers returns the users found among ids, keyed by id.
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)
	// ListUsers lists members of a company, or every user when companyID is nil.
	ListUsers(ctx context.Context, companyID *string) ([]model.User, error)
	GetUserPermission(ctx context.Context, userID string) (*model.UserPermission, error)
	GetContainer(ctx context.Context, id string) (*model.Container, error)
	ListContainers(ctx context.Context, filter ContainerFilter) ([]model.Container, error)
	ListAssignmentsByCompany(ctx context.Context, companyID string) ([]model.CompanyContainerAssignment, error)
}

// Store persists companies, users, permissions, containers and assignments.
type Store interface {
	Reader

	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, fn func(r Reader) error) error

	CreateCompany(ctx context.Context, company *model.Company) error
	DeleteCompany(ctx context.Context, id string) error

	// CreateUser inserts the user, failing with ErrCompanyFull when the
	// company has no seat left.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByEmail looks a user up by lowercased email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error

	// EnsureUserPermission returns the user's permission row, inserting the
	// allow-all default when none exists.
	EnsureUserPermission(ctx context.Context, userID string) (*model.UserPermission, error)
	// UpdateUserPermission applies fn to the locked permission row,
	// creating the default row first when absent.
	UpdateUserPermission(ctx context.Context, userID string, fn func(p *model.UserPermission) error) (*model.UserPermission, error)

	CreateContainer(ctx context.Context, container *model.Container) error
	// UpdateContainer applies fn to the locked container row and saves the
	// editable columns. Type, Views, CreatedBy and CreatedAt are never written.
	UpdateContainer(ctx context.Context, id string, fn func(c *model.Container) error) (*model.Container, error)
	// DeleteContainer deletes the container when check passes on the
	// locked row. Assignments for the container are removed with it.
	DeleteContainer(ctx context.Context, id string, check func(c model.Container) error) error
	// IncrementViews adds one to the view counter and returns the new value.
	IncrementViews(ctx context.Context, id string) (int64, error)
	// UpdateURLStatus writes only the URL health columns.
	UpdateURLStatus(ctx context.Context, id string, check URLCheck) error
	// ListContainersWithURL lists containers that have a URL to check.
	ListContainersWithURL(ctx context.Context) ([]model.Container, error)

	// CreateAssignment inserts the assignment unless one exists for the
	// same company and container, in which case the existing row is
	// returned and created is false.
	CreateAssignment(ctx context.Context, a *model.CompanyContainerAssignment) (result *model.CompanyContainerAssignment, created bool, err error)
	// DeleteAssignment removes the pair and reports whether a row existed.
	DeleteAssignment(ctx context.Context, companyID, containerID string) (bool, error)
}
