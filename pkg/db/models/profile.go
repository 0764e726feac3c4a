package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

// Profile mirrors an auth-provider user. The id is assigned by the auth
// provider, never generated here.
type Profile struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email           string            `gorm:"column:email;not null"`
	Role            enums.ProfileRole `gorm:"column:role;type:profile_role;not null"`
	StripeAccountID *string           `gorm:"column:stripe_account_id"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == enums.ProfileRoleAdmin
}

// HasPayoutAccount reports whether the seller finished payment onboarding.
func (p Profile) HasPayoutAccount() bool {
	return p.StripeAccountID != nil && *p.StripeAccountID != ""
}
