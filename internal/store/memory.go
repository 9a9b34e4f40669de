package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

type pairKey struct {
	companyID   string
	containerID string
}

// Memory is an in-memory Store for local runs and tests.
// It is not intended as production persistence.
type Memory struct {
	mu          sync.RWMutex
	companies   map[string]model.Company
	users       map[string]model.User
	permissions map[string]model.UserPermission
	containers  map[string]model.Container
	assignments map[pairKey]model.CompanyContainerAssignment
	now         func() time.Time
	logger      *zap.Logger
}

// NewMemory returns an empty in-memory store
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		companies:   make(map[string]model.Company),
		users:       make(map[string]model.User),
		permissions: make(map[string]model.UserPermission),
		containers:  make(map[string]model.Container),
		assignments: make(map[pairKey]model.CompanyContainerAssignment),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

var _ Store = (*Memory)(nil)

// memView reads the maps without locking; callers hold m.mu.
type memView struct{ m *Memory }

func (v memView) GetCompany(_ context.Context, id string) (*model.Company, error) {
	c, ok := v.m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (v memView) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := v.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (v memView) GetUsers(_ context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := v.m.users[id]; ok {
			out[id] = *copyUser(u)
		}
	}
	return out, nil
}

func (v memView) ListUsers(_ context.Context, companyID *string) ([]model.User, error) {
	out := make([]model.User, 0)
	for _, u := range v.m.users {
		if companyID != nil && !u.InCompany(*companyID) {
			continue
		}
		out = append(out, *copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v memView) GetUserPermission(_ context.Context, userID string) (*model.UserPermission, error) {
	p, ok := v.m.permissions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (v memView) GetContainer(_ context.Context, id string) (*model.Container, error) {
	c, ok := v.m.containers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (v memView) ListContainers(_ context.Context, filter ContainerFilter) ([]model.Container, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]model.Container, 0)
	for _, c := range v.m.containers {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.Industry != "" && !strings.EqualFold(c.Industry, filter.Industry) {
			continue
		}
		if filter.Department != "" && !strings.EqualFold(c.Department, filter.Department) {
			continue
		}
		if filter.Marketplace != nil && c.IsMarketplace != *filter.Marketplace {
			continue
		}
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		out = append(out, c.Clone())
	}
	sortContainers(out)
	return out, nil
}

func (v memView) ListAssignmentsByCompany(_ context.Context, companyID string) ([]model.CompanyContainerAssignment, error) {
	out := make([]model.CompanyContainerAssignment, 0)
	for key, a := range v.m.assignments {
		if key.companyID == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AssignedAt.Before(out[j].AssignedAt)
	})
	return out, nil
}

func matchesSearch(c model.Container, lowered string) bool {
	if strings.Contains(strings.ToLower(c.Title), lowered) ||
		strings.Contains(strings.ToLower(c.Description), lowered) {
		return true
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), lowered) {
			return true
		}
	}
	return false
}

// sortContainers orders newest first, ties by id
func sortContainers(cs []model.Container) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

func copyUser(u model.User) *model.User {
	out := u
	if u.Email != nil {
		e := *u.Email
		out.Email = &e
	}
	if u.CompanyID != nil {
		c := *u.CompanyID
		out.CompanyID = &c
	}
	out.Company = nil
	return &out
}

// Reader methods

func (m *Memory) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.GetCompany(ctx, id)
}

func (m *Memory) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.GetUser(ctx, id)
}

func (m *Memory) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.GetUsers(ctx, ids)
}

func (m *Memory) ListUsers(ctx context.Context, companyID *string) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.ListUsers(ctx, companyID)
}

func (m *Memory) GetUserPermission(ctx context.Context, userID string) (*model.UserPermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.GetUserPermission(ctx, userID)
}

func (m *Memory) GetContainer(ctx context.Context, id string) (*model.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.GetContainer(ctx, id)
}

func (m *Memory) ListContainers(ctx context.Context, filter ContainerFilter) ([]model.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.ListContainers(ctx, filter)
}

func (m *Memory) ListAssignmentsByCompany(ctx context.Context, companyID string) ([]model.CompanyContainerAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.ListAssignmentsByCompany(ctx, companyID)
}

// ReadSnapshot holds the read lock for the duration of fn
func (m *Memory) ReadSnapshot(ctx context.Context, fn func(r Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memView{m})
}

// Companies

func (m *Memory) CreateCompany(_ context.Context, company *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	if _, exists := m.companies[company.ID]; exists {
		return ErrConflict
	}
	if company.Email != nil {
		for _, c := range m.companies {
			if c.Email != nil && *c.Email == *company.Email {
				return ErrConflict
			}
		}
	}
	now := m.now()
	company.CreatedAt, company.UpdatedAt = now, now
	m.companies[company.ID] = *company
	return nil
}

func (m *Memory) DeleteCompany(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[id]; !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		if u.InCompany(id) {
			return ErrConflict
		}
	}
	for key := range m.assignments {
		if key.companyID == id {
			delete(m.assignments, key)
		}
	}
	delete(m.companies, id)
	m.logger.Debug("company deleted from memory store", zap.String("company_id", id))
	return nil
}

// Users

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrConflict
	}
	if user.Email != nil {
		for _, u := range m.users {
			if u.Email != nil && *u.Email == *user.Email {
				return ErrConflict
			}
		}
	}
	if user.CompanyID != nil {
		company, ok := m.companies[*user.CompanyID]
		if !ok {
			return ErrNotFound
		}
		members := 0
		for _, u := range m.users {
			if u.InCompany(company.ID) {
				members++
			}
		}
		if company.MaxUsers > 0 && members >= company.MaxUsers {
			return ErrCompanyFull
		}
	}
	now := m.now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = *copyUser(*user)
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	for _, c := range m.containers {
		if c.CreatedBy == id {
			return ErrConflict
		}
	}
	delete(m.permissions, id)
	delete(m.users, id)
	return nil
}

// Permissions

func (m *Memory) EnsureUserPermission(_ context.Context, userID string) (*model.UserPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.ensurePermissionLocked(userID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Memory) ensurePermissionLocked(userID string) (model.UserPermission, error) {
	if p, ok := m.permissions[userID]; ok {
		return p, nil
	}
	if _, ok := m.users[userID]; !ok {
		return model.UserPermission{}, ErrNotFound
	}
	p := model.DefaultUserPermission(userID)
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.permissions[userID] = p
	return p, nil
}

func (m *Memory) UpdateUserPermission(_ context.Context, userID string, fn func(p *model.UserPermission) error) (*model.UserPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.ensurePermissionLocked(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	p.UserID = userID
	p.UpdatedAt = m.now()
	m.permissions[userID] = p
	return &p, nil
}

// Containers

func (m *Memory) CreateContainer(_ context.Context, container *model.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if container.ID == "" {
		container.ID = uuid.NewString()
	}
	if _, exists := m.containers[container.ID]; exists {
		return ErrConflict
	}
	if _, ok := m.users[container.CreatedBy]; !ok {
		return ErrNotFound
	}
	now := m.now()
	container.CreatedAt, container.UpdatedAt = now, now
	m.containers[container.ID] = container.Clone()
	return nil
}

func (m *Memory) UpdateContainer(_ context.Context, id string, fn func(c *model.Container) error) (*model.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.containers[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}

	// columns the update path never writes
	working.ID = current.ID
	working.Type = current.Type
	working.Views = current.Views
	working.CreatedBy = current.CreatedBy
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = m.now()

	m.containers[id] = working.Clone()
	return &working, nil
}

func (m *Memory) DeleteContainer(_ context.Context, id string, check func(c model.Container) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.containers[id]
	if !ok {
		return ErrNotFound
	}
	if check != nil {
		if err := check(current.Clone()); err != nil {
			return err
		}
	}
	for key := range m.assignments {
		if key.containerID == id {
			delete(m.assignments, key)
		}
	}
	delete(m.containers, id)
	return nil
}

func (m *Memory) IncrementViews(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return 0, ErrNotFound
	}
	c.Views++
	m.containers[id] = c
	return c.Views, nil
}

func (m *Memory) UpdateURLStatus(_ context.Context, id string, check URLCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return ErrNotFound
	}
	checkedAt := check.CheckedAt
	c.URLStatus = check.Status
	c.URLLastChecked = &checkedAt
	c.URLCheckError = check.Error
	m.containers[id] = c
	return nil
}

func (m *Memory) ListContainersWithURL(_ context.Context) ([]model.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Container, 0)
	for _, c := range m.containers {
		if strings.TrimSpace(c.URL) != "" {
			out = append(out, c.Clone())
		}
	}
	sortContainers(out)
	return out, nil
}

// Assignments

func (m *Memory) CreateAssignment(_ context.Context, a *model.CompanyContainerAssignment) (*model.CompanyContainerAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{companyID: a.CompanyID, containerID: a.ContainerID}
	if existing, ok := m.assignments[key]; ok {
		return &existing, false, nil
	}
	if _, ok := m.companies[a.CompanyID]; !ok {
		return nil, false, ErrNotFound
	}
	if _, ok := m.containers[a.ContainerID]; !ok {
		return nil, false, ErrNotFound
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = m.now()
	}
	stored := *a
	stored.Company, stored.Container = nil, nil
	m.assignments[key] = stored
	return &stored, true, nil
}

func (m *Memory) DeleteAssignment(_ context.Context, companyID, containerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{companyID: companyID, containerID: containerID}
	if _, ok := m.assignments[key]; !ok {
		return false, nil
	}
	delete(m.assignments, key)
	return true, nil
}
