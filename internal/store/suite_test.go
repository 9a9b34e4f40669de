package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
)

// suiteData is the starting state every shared store test builds on
type suiteData struct {
	company model.Company
	admin   model.User
	viewer  model.User
	bot     model.Container
}

func seedSuite(t *testing.T, st Store) suiteData {
	t.Helper()
	ctx := context.Background()

	d := suiteData{company: model.Company{Name: "Acme", SubscriptionTier: model.TierBasic, MaxUsers: 3}}
	if err := st.CreateCompany(ctx, &d.company); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	d.admin = model.User{Email: strPtr("alice@acme.test"), Role: model.RoleAdmin, CompanyID: strPtr(d.company.ID)}
	d.viewer = model.User{Email: strPtr("bob@acme.test"), Role: model.RoleViewer, CompanyID: strPtr(d.company.ID)}
	for _, u := range []*model.User{&d.admin, &d.viewer} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	d.bot = model.Container{
		Title: "Sales Bot", Type: model.ContainerTypeApp, Visibility: model.VisibilityPublic,
		URLStatus: model.URLStatusUnknown, CreatedBy: d.admin.ID, Tags: []string{"crm", "sales"},
	}
	if err := st.CreateContainer(ctx, &d.bot); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	return d
}

// runStoreSuite checks the behaviour both Store implementations must share.
// newStore returns an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st Store, d suiteData)
	}{
		{"concurrent assign keeps one row", suiteConcurrentAssign},
		{"delete assignment reports existence", suiteDeleteAssignment},
		{"concurrent view increments", suiteConcurrentViews},
		{"search matches tag values", suiteSearchTags},
		{"search treats wildcards literally", suiteSearchWildcards},
		{"update protects columns", suiteUpdateProtectsColumns},
		{"delete container cascades assignments", suiteDeleteContainerCascades},
		{"delete company restricts then cascades", suiteDeleteCompany},
		{"delete user restricts then cascades permission", suiteDeleteUser},
		{"seats and unique email", suiteSeatsAndEmail},
		{"user by email", suiteUserByEmail},
		{"permission defaults", suitePermissionDefaults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			tt.fn(t, st, seedSuite(t, st))
		})
	}
}

func suiteConcurrentAssign(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	ids := make([]string, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, ok, err := st.CreateAssignment(ctx, &model.CompanyContainerAssignment{
				CompanyID: d.company.ID, ContainerID: d.bot.ID, AssignedBy: d.admin.ID,
			})
			errs[i] = err
			if err == nil {
				ids[i], created[i] = a.ID, ok
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %s, want %s", i, ids[i], ids[0])
		}
		if created[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d callers reported creating the row, want 1", winners)
	}
	rows, err := st.ListAssignmentsByCompany(ctx, d.company.ID)
	if err != nil || len(rows) != 1 {
		t.Errorf("rows = %d (%v), want 1", len(rows), err)
	}
}

func suiteDeleteAssignment(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	if _, _, err := st.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: d.company.ID, ContainerID: d.bot.ID}); err != nil {
		t.Fatal(err)
	}
	for i, want := range []bool{true, false} {
		existed, err := st.DeleteAssignment(ctx, d.company.ID, d.bot.ID)
		if err != nil || existed != want {
			t.Errorf("delete #%d: existed=%v err=%v, want %v", i+1, existed, err, want)
		}
	}
}

func suiteConcurrentViews(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.IncrementViews(ctx, d.bot.ID); err != nil {
				t.Errorf("IncrementViews: %v", err)
			}
		}()
	}
	wg.Wait()

	c, err := st.GetContainer(ctx, d.bot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Views != n {
		t.Errorf("views = %d, want %d", c.Views, n)
	}
	next, err := st.IncrementViews(ctx, d.bot.ID)
	if err != nil || next != n+1 {
		t.Errorf("IncrementViews returned %d (%v), want %d", next, err, n+1)
	}
	if _, err := st.IncrementViews(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing container: %v", err)
	}
}

func titles(t *testing.T, st Store, search string) []string {
	t.Helper()
	list, err := st.ListContainers(context.Background(), ContainerFilter{Search: search})
	if err != nil {
		t.Fatalf("ListContainers(%q): %v", search, err)
	}
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Title)
	}
	sort.Strings(out)
	return out
}

func sameTitles(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func suiteSearchTags(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	for _, c := range []model.Container{
		{Title: "Solo", Tags: []string{"Voice"}},
		{Title: "Bare"},
	} {
		c.Type, c.Visibility, c.URLStatus, c.CreatedBy = model.ContainerTypeVoice, model.VisibilityPublic, model.URLStatusUnknown, d.admin.ID
		if err := st.CreateContainer(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"crm", []string{"Sales Bot"}},
		{"SAL", []string{"Sales Bot"}},
		{"voice", []string{"Solo"}},
		{",", []string{}},
		{`"`, []string{}},
		{"[", []string{}},
		{"crm, sales", []string{}},
	}
	for _, tt := range tests {
		if got := titles(t, st, tt.search); !sameTitles(got, tt.want) {
			t.Errorf("search %q = %v, want %v", tt.search, got, tt.want)
		}
	}
}

func suiteSearchWildcards(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	for _, title := range []string{"snake_case helper", "100% uptime", `back\slash`} {
		c := model.Container{
			Title: title, Type: model.ContainerTypeWorkflow, Visibility: model.VisibilityPublic,
			URLStatus: model.URLStatusUnknown, CreatedBy: d.admin.ID,
		}
		if err := st.CreateContainer(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"_", []string{"snake_case helper"}},
		{"%", []string{"100% uptime"}},
		{`\`, []string{`back\slash`}},
		{"e_c", []string{"snake_case helper"}},
	}
	for _, tt := range tests {
		if got := titles(t, st, tt.search); !sameTitles(got, tt.want) {
			t.Errorf("search %q = %v, want %v", tt.search, got, tt.want)
		}
	}
}

func suiteUpdateProtectsColumns(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	if _, err := st.IncrementViews(ctx, d.bot.ID); err != nil {
		t.Fatal(err)
	}

	_, err := st.UpdateContainer(ctx, d.bot.ID, func(c *model.Container) error {
		c.Title = "Renamed"
		c.Type = model.ContainerTypeVoice
		c.Views = 999
		c.CreatedBy = d.viewer.ID
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateContainer: %v", err)
	}
	c, err := st.GetContainer(ctx, d.bot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "Renamed" || c.Type != model.ContainerTypeApp || c.Views != 1 || c.CreatedBy != d.admin.ID {
		t.Errorf("after update: %+v", c)
	}

	boom := errors.New("boom")
	if _, err := st.UpdateContainer(ctx, d.bot.ID, func(c *model.Container) error {
		c.Title = "Lost"
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("callback error: got %v", err)
	}
	if c, _ := st.GetContainer(ctx, d.bot.ID); c.Title != "Renamed" {
		t.Errorf("failed callback wrote %q", c.Title)
	}
}

func suiteDeleteContainerCascades(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	if _, _, err := st.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: d.company.ID, ContainerID: d.bot.ID}); err != nil {
		t.Fatal(err)
	}

	denied := errors.New("denied")
	if err := st.DeleteContainer(ctx, d.bot.ID, func(model.Container) error { return denied }); !errors.Is(err, denied) {
		t.Fatalf("check error: got %v", err)
	}
	if err := st.DeleteContainer(ctx, d.bot.ID, func(model.Container) error { return nil }); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}
	if _, err := st.GetContainer(ctx, d.bot.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("container still readable: %v", err)
	}
	if rows, _ := st.ListAssignmentsByCompany(ctx, d.company.ID); len(rows) != 0 {
		t.Errorf("assignments survived: %+v", rows)
	}
}

func suiteDeleteCompany(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	other := model.Company{Name: "Globex", SubscriptionTier: model.TierBasic}
	if err := st.CreateCompany(ctx, &other); err != nil {
		t.Fatal(err)
	}
	if _, _, err := st.CreateAssignment(ctx, &model.CompanyContainerAssignment{CompanyID: other.ID, ContainerID: d.bot.ID}); err != nil {
		t.Fatal(err)
	}

	if err := st.DeleteCompany(ctx, d.company.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("company with users: got %v, want ErrConflict", err)
	}
	if err := st.DeleteCompany(ctx, other.ID); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}
	if rows, _ := st.ListAssignmentsByCompany(ctx, other.ID); len(rows) != 0 {
		t.Errorf("assignments survived: %+v", rows)
	}
	if err := st.DeleteCompany(ctx, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func suiteDeleteUser(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	if _, err := st.EnsureUserPermission(ctx, d.viewer.ID); err != nil {
		t.Fatal(err)
	}

	if err := st.DeleteUser(ctx, d.admin.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("creator delete: got %v, want ErrConflict", err)
	}
	if err := st.DeleteUser(ctx, d.viewer.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := st.GetUserPermission(ctx, d.viewer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("permission survived: %v", err)
	}
}

func suiteSeatsAndEmail(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	third := model.User{Role: model.RoleViewer, CompanyID: strPtr(d.company.ID)}
	if err := st.CreateUser(ctx, &third); err != nil {
		t.Fatalf("third seat: %v", err)
	}
	fourth := model.User{Role: model.RoleViewer, CompanyID: strPtr(d.company.ID)}
	if err := st.CreateUser(ctx, &fourth); !errors.Is(err, ErrCompanyFull) {
		t.Errorf("fourth seat: got %v, want ErrCompanyFull", err)
	}

	dup := model.User{Email: strPtr("alice@acme.test"), Role: model.RoleViewer}
	if err := st.CreateUser(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email: got %v, want ErrConflict", err)
	}
	for i := 0; i < 2; i++ {
		u := model.User{Role: model.RoleViewer}
		if err := st.CreateUser(ctx, &u); err != nil {
			t.Errorf("user without email #%d: %v", i, err)
		}
	}
	orphan := model.User{Role: model.RoleViewer, CompanyID: strPtr("no-such-company")}
	if err := st.CreateUser(ctx, &orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown company: got %v, want ErrNotFound", err)
	}
}

func suiteUserByEmail(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	u, err := st.GetUserByEmail(ctx, "bob@acme.test")
	if err != nil || u.ID != d.viewer.ID {
		t.Errorf("GetUserByEmail = %+v, %v", u, err)
	}
	if _, err := st.GetUserByEmail(ctx, "nobody@acme.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown email: %v", err)
	}
}

func suitePermissionDefaults(t *testing.T, st Store, d suiteData) {
	ctx := context.Background()
	if _, err := st.GetUserPermission(ctx, d.viewer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("row before first use: %v", err)
	}
	p, err := st.EnsureUserPermission(ctx, d.viewer.ID)
	if err != nil || !p.CanAccessApps || !p.CanAccessVoices || !p.CanAccessWorkflows {
		t.Fatalf("EnsureUserPermission = %+v, %v", p, err)
	}
	p, err = st.UpdateUserPermission(ctx, d.viewer.ID, func(p *model.UserPermission) error {
		p.CanAccessVoices = false
		return nil
	})
	if err != nil || p.CanAccessVoices {
		t.Fatalf("UpdateUserPermission = %+v, %v", p, err)
	}
	again, err := st.EnsureUserPermission(ctx, d.viewer.ID)
	if err != nil || again.CanAccessVoices || again.UserID != p.UserID {
		t.Errorf("EnsureUserPermission overwrote the row: %+v, %v", again, err)
	}
	if _, err := st.EnsureUserPermission(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestMemoryStoreSuite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory(nil) })
}
