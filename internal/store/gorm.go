package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// editableContainerColumns are the only columns UpdateContainer writes
var editableContainerColumns = []string{
	"title", "description", "industry", "department", "visibility", "tags",
	"url", "url_status", "url_last_checked", "url_check_error", "is_marketplace", "updated_at",
}

// Gorm is a Store backed by PostgreSQL through gorm.
// The gorm.DB must be opened with TranslateError enabled.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an open gorm connection
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

var _ Store = (*Gorm)(nil)

// translate maps gorm errors onto store errors. fkErr is what a foreign
// key violation means for the calling operation.
func translate(err error, fkErr error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fkErr
	}
	return err
}

func (s *Gorm) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Reader methods

func (s *Gorm) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var company model.Company
	if err := s.conn(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &company, nil
}

func (s *Gorm) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &user, nil
}

func (s *Gorm) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if err := s.conn(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &user, nil
}

func (s *Gorm) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	defer prometheus.TrackDBOperation("query")(time.Now())

	var users []model.User
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Gorm) ListUsers(ctx context.Context, companyID *string) ([]model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := s.conn(ctx).Order("id")
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}
	var users []model.User
	if err := query.Find(&users).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return users, nil
}

func (s *Gorm) GetUserPermission(ctx context.Context, userID string) (*model.UserPermission, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var p model.UserPermission
	if err := s.conn(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &p, nil
}

func (s *Gorm) GetContainer(ctx context.Context, id string) (*model.Container, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var c model.Container
	if err := s.conn(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &c, nil
}

func (s *Gorm) ListContainers(ctx context.Context, filter ContainerFilter) ([]model.Container, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := s.conn(ctx).Model(&model.Container{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Industry != "" {
		query = query.Where("LOWER(industry) = LOWER(?)", filter.Industry)
	}
	if filter.Department != "" {
		query = query.Where("LOWER(department) = LOWER(?)", filter.Department)
	}
	if filter.Marketplace != nil {
		query = query.Where("is_marketplace = ?", *filter.Marketplace)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		// tags match element by element, never against the JSON text
		query = query.Where(
			"(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR "+
				"EXISTS (SELECT 1 FROM jsonb_array_elements_text(CASE WHEN jsonb_typeof(tags) = 'array' THEN tags ELSE '[]'::jsonb END) AS t(tag) "+
				"WHERE LOWER(t.tag) LIKE ?))",
			pattern, pattern, pattern,
		)
	}

	var containers []model.Container
	if err := query.Order("created_at DESC").Order("id").Find(&containers).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return containers, nil
}

func (s *Gorm) ListAssignmentsByCompany(ctx context.Context, companyID string) ([]model.CompanyContainerAssignment, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var assignments []model.CompanyContainerAssignment
	err := s.conn(ctx).
		Where("company_id = ?", companyID).
		Order("assigned_at").Order("id").
		Find(&assignments).Error
	if err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return assignments, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ReadSnapshot runs fn in a read-only repeatable-read transaction
func (s *Gorm) ReadSnapshot(ctx context.Context, fn func(r Reader) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

// Companies

func (s *Gorm) CreateCompany(ctx context.Context, company *model.Company) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	return translate(s.conn(ctx).Create(company).Error, ErrNotFound)
}

func (s *Gorm) DeleteCompany(ctx context.Context, id string) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var company model.Company
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&company, "id = ?", id).Error; err != nil {
			return translate(err, ErrNotFound)
		}

		var members int64
		if err := tx.Model(&model.User{}).Where("company_id = ?", id).Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return ErrConflict
		}

		if err := tx.Where("company_id = ?", id).Delete(&model.CompanyContainerAssignment{}).Error; err != nil {
			return err
		}
		return translate(tx.Delete(&model.Company{}, "id = ?", id).Error, ErrConflict)
	})
}

// Users

func (s *Gorm) CreateUser(ctx context.Context, user *model.User) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if user.CompanyID != nil {
			// the company row lock serializes seat counting
			var company model.Company
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&company, "id = ?", *user.CompanyID).Error; err != nil {
				return translate(err, ErrNotFound)
			}
			var members int64
			if err := tx.Model(&model.User{}).Where("company_id = ?", company.ID).Count(&members).Error; err != nil {
				return err
			}
			if company.MaxUsers > 0 && members >= int64(company.MaxUsers) {
				return ErrCompanyFull
			}
		}
		return translate(tx.Omit(clause.Associations).Create(user).Error, ErrNotFound)
	})
}

func (s *Gorm) DeleteUser(ctx context.Context, id string) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
			return translate(err, ErrNotFound)
		}

		var owned int64
		if err := tx.Model(&model.Container{}).Where("created_by = ?", id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return ErrConflict
		}

		if err := tx.Where("user_id = ?", id).Delete(&model.UserPermission{}).Error; err != nil {
			return err
		}
		return translate(tx.Delete(&model.User{}, "id = ?", id).Error, ErrConflict)
	})
}

// Permissions

func insertDefaultPermission(tx *gorm.DB, userID string) error {
	p := model.DefaultUserPermission(userID)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Omit(clause.Associations).Create(&p).Error
	return translate(err, ErrNotFound)
}

func (s *Gorm) EnsureUserPermission(ctx context.Context, userID string) (*model.UserPermission, error) {
	defer prometheus.TrackDBOperation("upsert")(time.Now())

	var p model.UserPermission
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertDefaultPermission(tx, userID); err != nil {
			return err
		}
		return translate(tx.First(&p, "user_id = ?", userID).Error, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Gorm) UpdateUserPermission(ctx context.Context, userID string, fn func(p *model.UserPermission) error) (*model.UserPermission, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())

	var p model.UserPermission
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertDefaultPermission(tx, userID); err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "user_id = ?", userID).Error; err != nil {
			return translate(err, ErrNotFound)
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.UserID = userID
		return tx.Model(&p).
			Select("can_access_apps", "can_access_voices", "can_access_workflows", "updated_at").
			Updates(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Containers

func (s *Gorm) CreateContainer(ctx context.Context, container *model.Container) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if container.ID == "" {
		container.ID = uuid.NewString()
	}
	return translate(s.conn(ctx).Omit(clause.Associations).Create(container).Error, ErrNotFound)
}

func (s *Gorm) UpdateContainer(ctx context.Context, id string, fn func(c *model.Container) error) (*model.Container, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())

	var c model.Container
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error; err != nil {
			return translate(err, ErrNotFound)
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.ID = id
		return tx.Model(&c).Select(editableContainerColumns).Updates(&c).Error
	})
	if err != nil {
		return nil, err
	}
	// re-read so columns the update skipped reflect the stored row
	return s.GetContainer(ctx, id)
}

func (s *Gorm) DeleteContainer(ctx context.Context, id string, check func(c model.Container) error) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Container
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error; err != nil {
			return translate(err, ErrNotFound)
		}
		if check != nil {
			if err := check(c); err != nil {
				return err
			}
		}
		if err := tx.Where("container_id = ?", id).Delete(&model.CompanyContainerAssignment{}).Error; err != nil {
			return err
		}
		return translate(tx.Delete(&model.Container{}, "id = ?", id).Error, ErrConflict)
	})
}

// IncrementViews issues a relative update so concurrent viewers never lose counts
func (s *Gorm) IncrementViews(ctx context.Context, id string) (int64, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())

	var c model.Container
	result := s.conn(ctx).Model(&c).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "views"}}}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		return 0, translate(result.Error, ErrNotFound)
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return c.Views, nil
}

func (s *Gorm) UpdateURLStatus(ctx context.Context, id string, check URLCheck) error {
	defer prometheus.TrackDBOperation("update")(time.Now())

	result := s.conn(ctx).Model(&model.Container{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"url_status":       check.Status,
			"url_last_checked": check.CheckedAt,
			"url_check_error":  check.Error,
		})
	if result.Error != nil {
		return translate(result.Error, ErrNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) ListContainersWithURL(ctx context.Context) ([]model.Container, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var containers []model.Container
	err := s.conn(ctx).
		Where("url IS NOT NULL AND TRIM(url) <> ''").
		Order("created_at DESC").Order("id").
		Find(&containers).Error
	if err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return containers, nil
}

// Assignments

// CreateAssignment relies on the unique (company_id, container_id) index,
// so concurrent acquisitions of the same pair collapse to one row.
func (s *Gorm) CreateAssignment(ctx context.Context, a *model.CompanyContainerAssignment) (*model.CompanyContainerAssignment, bool, error) {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}

	var (
		out     model.CompanyContainerAssignment
		created bool
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "container_id"}},
			DoNothing: true,
		}).Omit(clause.Associations).Create(a)
		if result.Error != nil {
			return translate(result.Error, ErrNotFound)
		}
		created = result.RowsAffected == 1
		return translate(tx.
			Where("company_id = ? AND container_id = ?", a.CompanyID, a.ContainerID).
			First(&out).Error, ErrNotFound)
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (s *Gorm) DeleteAssignment(ctx context.Context, companyID, containerID string) (bool, error) {
	defer prometheus.TrackDBOperation("delete")(time.Now())

	result := s.conn(ctx).
		Where("company_id = ? AND container_id = ?", companyID, containerID).
		Delete(&model.CompanyContainerAssignment{})
	if result.Error != nil {
		return false, translate(result.Error, ErrConflict)
	}
	return result.RowsAffected > 0, nil
}
