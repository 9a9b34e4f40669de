package store

import (
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/database"
)

// testDSNEnv names a disposable PostgreSQL database; its tables are
// truncated between tests.
const testDSNEnv = "TEST_DATABASE_DSN"

var (
	testDBOnce sync.Once
	testDB     *gorm.DB
	testDBErr  error
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping PostgreSQL store tests", testDSNEnv)
	}
	testDBOnce.Do(func() {
		testDB, testDBErr = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Silent),
		})
		if testDBErr == nil {
			testDBErr = database.Migrate(testDB)
		}
	})
	if testDBErr != nil {
		t.Fatalf("open test database: %v", testDBErr)
	}
	return testDB
}

func emptyGormStore(t *testing.T) Store {
	t.Helper()
	db := openTestDB(t)
	err := db.Exec("TRUNCATE company_container_assignments, containers, user_permissions, users, companies CASCADE").Error
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewGorm(db)
}

func TestGormStoreSuite(t *testing.T) {
	openTestDB(t)
	runStoreSuite(t, emptyGormStore)
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`C:\path`, `C:\\path`},
		{`%_\`, `\%\_\\`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
