package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

func strPtr(s string) *string { return &s }

// steppingClock advances one second per call so creation order is stable.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	store     *Memory
	company   model.Company
	user      model.User
	container model.Container
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	m := NewMemory(nil)
	m.now = steppingClock()

	company := model.Company{Name: "Acme", SubscriptionTier: model.TierBasic, MaxUsers: 2}
	if err := m.CreateCompany(ctx, &company); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	user := model.User{Role: model.RoleAdmin, CompanyID: strPtr(company.ID)}
	if err := m.CreateUser(ctx, &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	container := model.Container{
		Title: "Sales Bot", Type: model.ContainerTypeApp, Visibility: model.VisibilityPublic,
		URLStatus: model.URLStatusUnknown, CreatedBy: user.ID, Tags: []string{"crm", "sales"},
	}
	if err := m.CreateContainer(ctx, &container); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	return fixture{store: m, company: company, user: user, container: container}
}

func TestCreateAssignmentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{
		CompanyID: f.company.ID, ContainerID: f.container.ID, AssignedBy: f.user.ID,
	})
	if err != nil || !created {
		t.Fatalf("first assign: created=%v err=%v", created, err)
	}
	second, created, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{
		CompanyID: f.company.ID, ContainerID: f.container.ID, AssignedBy: "someone-else",
	})
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if created {
		t.Error("second assign reported a new row")
	}
	if *first != *second {
		t.Errorf("second result %+v differs from first %+v", second, first)
	}

	rows, _ := f.store.ListAssignmentsByCompany(ctx, f.company.ID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 assignment row, got %d", len(rows))
	}
}

func TestConcurrentAssignCollapses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{
				CompanyID: f.company.ID, ContainerID: f.container.ID,
			})
			if err != nil {
				t.Errorf("CreateAssignment: %v", err)
				return
			}
			ids <- a.ID
		}()
	}
	wg.Wait()
	close(ids)

	distinct := map[string]struct{}{}
	for id := range ids {
		distinct[id] = struct{}{}
	}
	if len(distinct) != 1 {
		t.Errorf("expected one assignment id, got %d", len(distinct))
	}
}

func TestDeleteAssignmentIsSafeToRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: f.company.ID, ContainerID: f.container.ID}); err != nil {
		t.Fatal(err)
	}
	deleted, err := f.store.DeleteAssignment(ctx, f.company.ID, f.container.ID)
	if err != nil || !deleted {
		t.Fatalf("first delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = f.store.DeleteAssignment(ctx, f.company.ID, f.container.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestIncrementViewsConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.IncrementViews(ctx, f.container.ID); err != nil {
				t.Errorf("IncrementViews: %v", err)
			}
		}()
	}
	wg.Wait()

	c, err := f.store.GetContainer(ctx, f.container.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Views != n {
		t.Errorf("views = %d, want %d", c.Views, n)
	}
	if _, err := f.store.IncrementViews(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing container: got %v", err)
	}
}

func TestUpdateContainerProtectsColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.IncrementViews(ctx, f.container.ID); err != nil {
		t.Fatal(err)
	}

	updated, err := f.store.UpdateContainer(ctx, f.container.ID, func(c *model.Container) error {
		c.Title = "Renamed"
		c.Type = model.ContainerTypeVoice
		c.Views = 999
		c.CreatedBy = "intruder"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateContainer: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.Type != model.ContainerTypeApp || updated.Views != 1 || updated.CreatedBy != f.user.ID {
		t.Errorf("protected columns changed: %+v", updated)
	}
}

func TestUpdateContainerCallbackErrorLeavesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := f.store.UpdateContainer(ctx, f.container.ID, func(c *model.Container) error {
		c.Title = "changed"
		c.Tags[0] = "mutated"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	c, _ := f.store.GetContainer(ctx, f.container.ID)
	if c.Title != "Sales Bot" || c.Tags[0] != "crm" {
		t.Errorf("row changed after failed update: %+v", c)
	}
}

func TestDeleteContainerCascadesAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: f.company.ID, ContainerID: f.container.ID}); err != nil {
		t.Fatal(err)
	}

	denied := errors.New("denied")
	if err := f.store.DeleteContainer(ctx, f.container.ID, func(model.Container) error { return denied }); !errors.Is(err, denied) {
		t.Fatalf("check error not returned: %v", err)
	}
	if err := f.store.DeleteContainer(ctx, f.container.ID, nil); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}
	rows, _ := f.store.ListAssignmentsByCompany(ctx, f.company.ID)
	if len(rows) != 0 {
		t.Errorf("assignments survived container deletion: %d", len(rows))
	}
	if err := f.store.DeleteContainer(ctx, f.container.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestDeleteCompanyRestrictsOnUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: f.company.ID, ContainerID: f.container.ID}); err != nil {
		t.Fatal(err)
	}

	if err := f.store.DeleteCompany(ctx, f.company.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while users exist, got %v", err)
	}

	// an empty company goes, taking its assignments with it
	empty := model.Company{Name: "Empty", SubscriptionTier: model.TierBasic}
	if err := f.store.CreateCompany(ctx, &empty); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.store.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: empty.ID, ContainerID: f.container.ID}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.DeleteCompany(ctx, empty.ID); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}
	rows, _ := f.store.ListAssignmentsByCompany(ctx, empty.ID)
	if len(rows) != 0 {
		t.Errorf("assignments survived company deletion")
	}
}

func TestDeleteUserRestrictsOnContainers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.EnsureUserPermission(ctx, f.user.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.store.DeleteUser(ctx, f.user.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := f.store.DeleteContainer(ctx, f.container.ID, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.store.DeleteUser(ctx, f.user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := f.store.GetUserPermission(ctx, f.user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("permission row survived user deletion: %v", err)
	}
}

func TestCreateUserEnforcesSeatsAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := model.User{Role: model.RoleViewer, CompanyID: strPtr(f.company.ID), Email: strPtr("v@acme.test")}
	if err := f.store.CreateUser(ctx, &second); err != nil {
		t.Fatalf("second user: %v", err)
	}
	third := model.User{Role: model.RoleViewer, CompanyID: strPtr(f.company.ID)}
	if err := f.store.CreateUser(ctx, &third); !errors.Is(err, ErrCompanyFull) {
		t.Errorf("expected ErrCompanyFull, got %v", err)
	}
	dup := model.User{Role: model.RoleViewer, Email: strPtr("v@acme.test")}
	if err := f.store.CreateUser(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
	orphan := model.User{Role: model.RoleViewer, CompanyID: strPtr("nope")}
	if err := f.store.CreateUser(ctx, &orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown company, got %v", err)
	}
}

func TestCompanyEmailUniqueOrNull(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c := model.Company{Name: "no email", SubscriptionTier: model.TierBasic}
		if err := m.CreateCompany(ctx, &c); err != nil {
			t.Fatalf("null email company %d: %v", i, err)
		}
	}
	a := model.Company{Name: "a", Email: strPtr("x@y.z"), SubscriptionTier: model.TierBasic}
	if err := m.CreateCompany(ctx, &a); err != nil {
		t.Fatal(err)
	}
	b := model.Company{Name: "b", Email: strPtr("x@y.z"), SubscriptionTier: model.TierBasic}
	if err := m.CreateCompany(ctx, &b); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPermissionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.GetUserPermission(ctx, f.user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no permission row yet, got %v", err)
	}
	p, err := f.store.EnsureUserPermission(ctx, f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.CanAccessApps || !p.CanAccessVoices || !p.CanAccessWorkflows {
		t.Errorf("default permission not allow-all: %+v", p)
	}

	p, err = f.store.UpdateUserPermission(ctx, f.user.ID, func(p *model.UserPermission) error {
		p.CanAccessVoices = false
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	again, _ := f.store.EnsureUserPermission(ctx, f.user.ID)
	if again.CanAccessVoices || !again.CanAccessApps {
		t.Errorf("EnsureUserPermission overwrote an existing row: %+v", again)
	}
	if _, err := f.store.EnsureUserPermission(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("permission for unknown user: %v", err)
	}
}

func TestListContainersFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	voice := model.Container{
		Title: "Receptionist", Description: "answers calls", Type: model.ContainerTypeVoice,
		Industry: "Healthcare", Department: "Front Desk", Visibility: model.VisibilityPublic,
		IsMarketplace: true, CreatedBy: f.user.ID,
	}
	if err := f.store.CreateContainer(ctx, &voice); err != nil {
		t.Fatal(err)
	}
	yes := true

	tests := []struct {
		name   string
		filter ContainerFilter
		want   []string
	}{
		{"all", ContainerFilter{}, []string{voice.ID, f.container.ID}},
		{"type", ContainerFilter{Type: model.ContainerTypeApp}, []string{f.container.ID}},
		{"industry case-insensitive", ContainerFilter{Industry: "healthcare"}, []string{voice.ID}},
		{"department", ContainerFilter{Department: "front desk"}, []string{voice.ID}},
		{"search title", ContainerFilter{Search: "sales"}, []string{f.container.ID}},
		{"search description", ContainerFilter{Search: "CALLS"}, []string{voice.ID}},
		{"search tag", ContainerFilter{Search: "crm"}, []string{f.container.ID}},
		{"marketplace", ContainerFilter{Marketplace: &yes}, []string{voice.ID}},
		{"no match", ContainerFilter{Search: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.store.ListContainers(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d containers, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestURLStatusWritesOnlyHealthColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.UpdateContainer(ctx, f.container.ID, func(c *model.Container) error {
		c.URL = "https://example.test"
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	withURL, _ := f.store.ListContainersWithURL(ctx)
	if len(withURL) != 1 {
		t.Fatalf("expected one container with URL, got %d", len(withURL))
	}

	err := f.store.UpdateURLStatus(ctx, f.container.ID, URLCheck{Status: model.URLStatusBroken, Error: "404"})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := f.store.GetContainer(ctx, f.container.ID)
	if c.URLStatus != model.URLStatusBroken || c.URLCheckError != "404" || c.URLLastChecked == nil {
		t.Errorf("url columns not written: %+v", c)
	}
	if c.Visibility != model.VisibilityPublic || c.Title != "Sales Bot" {
		t.Errorf("non-url columns changed: %+v", c)
	}
}

func TestReadSnapshotSeesConsistentState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.ReadSnapshot(ctx, func(r Reader) error {
		cs, err := r.ListContainers(ctx, ContainerFilter{})
		if err != nil {
			return err
		}
		users, err := r.ListUsers(ctx, nil)
		if err != nil {
			return err
		}
		if len(cs) != 1 || len(users) != 1 {
			t.Errorf("snapshot saw %d containers, %d users", len(cs), len(users))
		}
		owners, err := r.GetUsers(ctx, []string{f.user.ID, "missing"})
		if err != nil {
			return err
		}
		if len(owners) != 1 {
			t.Errorf("GetUsers returned %d users", len(owners))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
