package model

import "time"

// CompanyContainerAssignment records a company having acquired a container.
// The (CompanyID, ContainerID) pair is unique; rows are created or deleted,
// never updated. AssignedBy is an audit field and carries no constraint.
type CompanyContainerAssignment struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID   string    `json:"company_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_assignment_company_container"`
	ContainerID string    `json:"container_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_assignment_company_container;index"`
	AssignedAt  time.Time `json:"assigned_at" gorm:"not null"`
	AssignedBy  string    `json:"assigned_by" gorm:"type:varchar(36)"`

	// Relations
	Company   *Company   `json:"-" gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Container *Container `json:"-" gorm:"foreignKey:ContainerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName pins the table name used by gorm
func (CompanyContainerAssignment) TableName() string {
	return "company_container_assignments"
}
