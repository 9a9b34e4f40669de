package model

import "time"

// Role is the global role of a user
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Valid reports whether the role is admin or viewer
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// User represents a marketplace user. CompanyID is nil for unaffiliated
// accounts and for platform administrators.
type User struct {
	ID        string  `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     *string `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	FirstName string  `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string  `json:"last_name" gorm:"type:varchar(100)"`
	Role      Role    `json:"role" gorm:"type:varchar(20);not null"`
	CompanyID *string `json:"company_id,omitempty" gorm:"type:varchar(36);index"`
	// PasswordHash is a bcrypt hash; empty means the user cannot log in.
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relations
	Company *Company `json:"-" gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// IsAdmin reports whether the user holds the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// InCompany reports whether the user belongs to the given company
func (u User) InCompany(companyID string) bool {
	return u.CompanyID != nil && *u.CompanyID == companyID
}
