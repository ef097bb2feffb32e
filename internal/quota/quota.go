// Package quota enforces plan limits: for each countable entity kind it
// compares the organization's live row count against the cap of its
// subscription tier. Counts always come from the store of record, never from
// cache, so a cold cache can never produce a wrong quota decision.
package quota

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/pkg/apperr"
)

// Entity is a countable, plan-capped entity kind.
type Entity string

const (
	// EntityNone marks actions with no quota dimension.
	EntityNone    Entity = ""
	EntityContact Entity = "contact"
	EntityDeal    Entity = "deal"
	EntityProduct Entity = "product"
	EntityMember  Entity = "member"
	EntityAgent   Entity = "agent"
	EntityInbox   Entity = "inbox"
)

// Entities enumerates all quota-checked entity kinds.
var Entities = []Entity{EntityContact, EntityDeal, EntityProduct, EntityMember, EntityAgent, EntityInbox}

// Unlimited is the reserved limit sentinel meaning "no cap".
const Unlimited = 0

// planLimits maps each tier to its per-entity caps. Unlimited (0) means the
// tier has no cap for that entity.
var planLimits = map[models.PlanTier]map[Entity]int{
	models.PlanFree: {
		EntityContact: 100,
		EntityDeal:    25,
		EntityProduct: 10,
		EntityMember:  3,
		EntityAgent:   1,
		EntityInbox:   1,
	},
	models.PlanStarter: {
		EntityContact: 1000,
		EntityDeal:    250,
		EntityProduct: 50,
		EntityMember:  10,
		EntityAgent:   3,
		EntityInbox:   2,
	},
	models.PlanPro: {
		EntityContact: 10000,
		EntityDeal:    2500,
		EntityProduct: 500,
		EntityMember:  25,
		EntityAgent:   10,
		EntityInbox:   5,
	},
	models.PlanScale: {
		EntityContact: Unlimited,
		EntityDeal:    Unlimited,
		EntityProduct: Unlimited,
		EntityMember:  Unlimited,
		EntityAgent:   Unlimited,
		EntityInbox:   Unlimited,
	},
}

// LimitFor returns the cap for an entity on a plan. Unknown tiers get the
// free tier's caps.
func LimitFor(plan models.PlanTier, entity Entity) int {
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits[models.PlanFree]
	}
	return limits[entity]
}

// Usage reports current count against the plan limit for one entity kind.
type Usage struct {
	Entity      Entity `json:"entity"`
	Current     int    `json:"current"`
	Limit       int    `json:"limit"`
	WithinQuota bool   `json:"within_quota"`
	// Percent is round(current/limit*100); nil on unlimited plans.
	Percent *int `json:"percent,omitempty"`
}

// Counter counts persisted rows of an entity kind scoped to an organization.
type Counter interface {
	CountByOrg(ctx context.Context, orgID uuid.UUID, entity Entity) (int, error)
}

// PlanSource reports an organization's current subscription tier.
type PlanSource interface {
	PlanForOrg(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error)
}

// Checker computes quota usage from live counts and the plan limit table.
type Checker struct {
	counter Counter
	plans   PlanSource
}

// NewChecker creates a quota checker.
func NewChecker(counter Counter, plans PlanSource) *Checker {
	return &Checker{counter: counter, plans: plans}
}

// Check returns the organization's usage for one entity kind.
// WithinQuota is current < limit, except always true for the unlimited
// sentinel regardless of current count.
func (c *Checker) Check(ctx context.Context, orgID uuid.UUID, entity Entity) (Usage, error) {
	plan, err := c.plans.PlanForOrg(ctx, orgID)
	if err != nil {
		return Usage{}, apperr.External("plan lookup", err)
	}
	current, err := c.counter.CountByOrg(ctx, orgID, entity)
	if err != nil {
		return Usage{}, apperr.External("usage count", err)
	}
	return NewUsage(entity, current, LimitFor(plan, entity)), nil
}

// Report returns usage for every quota-checked entity kind.
func (c *Checker) Report(ctx context.Context, orgID uuid.UUID) ([]Usage, error) {
	report := make([]Usage, 0, len(Entities))
	for _, e := range Entities {
		u, err := c.Check(ctx, orgID, e)
		if err != nil {
			return nil, err
		}
		report = append(report, u)
	}
	return report, nil
}

// NewUsage builds a Usage value, applying the unlimited sentinel rule and
// skipping the percentage on unlimited plans (no division by zero).
func NewUsage(entity Entity, current, limit int) Usage {
	u := Usage{
		Entity:      entity,
		Current:     current,
		Limit:       limit,
		WithinQuota: limit == Unlimited || current < limit,
	}
	if limit != Unlimited {
		pct := int(math.Round(float64(current) / float64(limit) * 100))
		u.Percent = &pct
	}
	return u
}

// Exceeded converts a failed usage check into the typed quota error.
func (u Usage) Exceeded() error {
	return &apperr.QuotaExceededError{Entity: string(u.Entity), Current: u.Current, Limit: u.Limit}
}
