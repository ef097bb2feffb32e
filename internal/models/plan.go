package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier is an organization's subscription tier.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanStarter PlanTier = "starter"
	PlanPro     PlanTier = "pro"
	PlanScale   PlanTier = "scale"
)

// Subscription records an organization's current plan.
type Subscription struct {
	ID               uuid.UUID  `json:"id"`
	OrganizationID   uuid.UUID  `json:"organization_id"`
	Plan             PlanTier   `json:"plan"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
