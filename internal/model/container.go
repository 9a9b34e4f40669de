package model

import (
	"time"

	"gorm.io/datatypes"
)

// ContainerType is the kind of content a container holds
type ContainerType string

const (
	ContainerTypeApp      ContainerType = "app"
	ContainerTypeVoice    ContainerType = "voice"
	ContainerTypeWorkflow ContainerType = "workflow"
)

// ContainerTypes lists every container type in display order
var ContainerTypes = []ContainerType{ContainerTypeApp, ContainerTypeVoice, ContainerTypeWorkflow}

// Valid reports whether the type is app, voice or workflow
func (t ContainerType) Valid() bool {
	switch t {
	case ContainerTypeApp, ContainerTypeVoice, ContainerTypeWorkflow:
		return true
	}
	return false
}

// Visibility is the coarse access level of a container
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityAdminOnly  Visibility = "admin_only"
)

// Valid reports whether the visibility is a known level
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityRestricted, VisibilityAdminOnly:
		return true
	}
	return false
}

// URLStatus is the last observed health of a container URL
type URLStatus string

const (
	URLStatusUnknown      URLStatus = "unknown"
	URLStatusActive       URLStatus = "active"
	URLStatusBroken       URLStatus = "broken"
	URLStatusAuthRequired URLStatus = "auth_required"
	URLStatusTimeout      URLStatus = "timeout"
	URLStatusBlocked      URLStatus = "blocked"
)

// Valid reports whether the status is a known URL status
func (s URLStatus) Valid() bool {
	switch s {
	case URLStatusUnknown, URLStatusActive, URLStatusBroken,
		URLStatusAuthRequired, URLStatusTimeout, URLStatusBlocked:
		return true
	}
	return false
}

// Container is an app, voice or workflow listed in the marketplace.
// Type never changes after creation and Views only moves through the
// view-tracking path.
type Container struct {
	ID             string                      `json:"id" gorm:"type:varchar(36);primaryKey"`
	Title          string                      `json:"title" gorm:"type:varchar(255);not null"`
	Description    string                      `json:"description" gorm:"type:text"`
	Type           ContainerType               `json:"type" gorm:"type:varchar(20);not null;index"`
	Industry       string                      `json:"industry" gorm:"type:varchar(100);index"`
	Department     string                      `json:"department" gorm:"type:varchar(100);index"`
	Visibility     Visibility                  `json:"visibility" gorm:"type:varchar(20);not null"`
	Tags           datatypes.JSONSlice[string] `json:"tags" gorm:"type:jsonb"`
	URL            string                      `json:"url,omitempty" gorm:"type:text"`
	URLStatus      URLStatus                   `json:"url_status" gorm:"type:varchar(20);not null"`
	URLLastChecked *time.Time                  `json:"url_last_checked,omitempty"`
	URLCheckError  string                      `json:"url_check_error,omitempty" gorm:"type:text"`
	IsMarketplace  bool                        `json:"is_marketplace" gorm:"not null;index"`
	Views          int64                       `json:"views" gorm:"not null"`
	CreatedBy      string                      `json:"created_by" gorm:"type:varchar(36);not null;index"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	// Relations
	Creator *User `json:"-" gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// Clone returns a copy that shares no slices or pointers with c
func (c Container) Clone() Container {
	out := c
	if c.Tags != nil {
		out.Tags = append(datatypes.JSONSlice[string]{}, c.Tags...)
	}
	if c.URLLastChecked != nil {
		t := *c.URLLastChecked
		out.URLLastChecked = &t
	}
	out.Creator = nil
	return out
}
