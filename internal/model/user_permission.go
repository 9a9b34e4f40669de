package model

import "time"

// UserPermission holds the per-user capability switches, one row per user.
// A missing row means every capability is granted.
//
// The boolean columns carry no gorm default tag: gorm skips zero values on
// insert when a default exists, which would turn an explicit false into true.
type UserPermission struct {
	UserID             string    `json:"user_id" gorm:"type:varchar(36);primaryKey"`
	CanAccessApps      bool      `json:"can_access_apps" gorm:"not null"`
	CanAccessVoices    bool      `json:"can_access_voices" gorm:"not null"`
	CanAccessWorkflows bool      `json:"can_access_workflows" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Relations
	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// DefaultUserPermission returns the allow-all permission for a user
func DefaultUserPermission(userID string) UserPermission {
	return UserPermission{
		UserID:             userID,
		CanAccessApps:      true,
		CanAccessVoices:    true,
		CanAccessWorkflows: true,
	}
}

// Allows reports whether the permission grants access to the container type.
// Unknown types are never allowed.
func (p UserPermission) Allows(t ContainerType) bool {
	switch t {
	case ContainerTypeApp:
		return p.CanAccessApps
	case ContainerTypeVoice:
		return p.CanAccessVoices
	case ContainerTypeWorkflow:
		return p.CanAccessWorkflows
	}
	return false
}
