package model

import "time"

// SubscriptionTier is the billing tier of a company
type SubscriptionTier string

const (
	TierBasic      SubscriptionTier = "basic"
	TierPremium    SubscriptionTier = "premium"
	TierEnterprise SubscriptionTier = "enterprise"
)

// Valid reports whether the tier is one of the known tiers
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// Company is a tenant organization. Users and assignments point at it.
type Company struct {
	ID               string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name             string           `json:"name" gorm:"type:varchar(255);not null"`
	Email            *string          `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier" gorm:"type:varchar(20);not null"`
	MaxUsers         int              `json:"max_users" gorm:"not null"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
