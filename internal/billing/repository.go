package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/quota"
)

// Repository handles subscription persistence and is the source of truth for
// quota decisions: it implements both quota.Counter and quota.PlanSource.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// countQueries maps each quota entity to its live-count query. Member seats
// count accepted memberships and pending invites alike.
var countQueries = map[quota.Entity]string{
	quota.EntityContact: `SELECT COUNT(*) FROM contacts WHERE organization_id = $1`,
	quota.EntityDeal:    `SELECT COUNT(*) FROM deals WHERE organization_id = $1`,
	quota.EntityProduct: `SELECT COUNT(*) FROM products WHERE organization_id = $1`,
	quota.EntityMember:  `SELECT COUNT(*) FROM organization_members WHERE organization_id = $1`,
	quota.EntityAgent:   `SELECT COUNT(*) FROM agents WHERE organization_id = $1`,
	quota.EntityInbox:   `SELECT COUNT(*) FROM inboxes WHERE organization_id = $1`,
}

// CountByOrg counts persisted rows for one quota entity. Always reads the
// store of record, never the cache.
func (r *Repository) CountByOrg(ctx context.Context, orgID uuid.UUID, entity quota.Entity) (int, error) {
	q, ok := countQueries[entity]
	if !ok {
		return 0, fmt.Errorf("no count query for entity %q", entity)
	}
	var n int
	err := r.pool.QueryRow(ctx, q, orgID).Scan(&n)
	return n, err
}

// PlanForOrg returns the organization's subscription tier. An organization
// without a subscription row is treated as free tier.
func (r *Repository) PlanForOrg(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error) {
	var plan string
	err := r.pool.QueryRow(ctx,
		`SELECT plan FROM subscriptions WHERE organization_id = $1`, orgID).Scan(&plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PlanFree, nil
	}
	if err != nil {
		return "", err
	}
	return models.PlanTier(plan), nil
}

// GetSubscription returns the organization's subscription, or nil.
func (r *Repository) GetSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	var s models.Subscription
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, plan, current_period_end, created_at, updated_at
		 FROM subscriptions WHERE organization_id = $1`, orgID).
		Scan(&s.ID, &s.OrganizationID, &s.Plan, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetPlan upserts the organization's plan, typically from a billing provider
// webhook.
func (r *Repository) SetPlan(ctx context.Context, orgID uuid.UUID, plan models.PlanTier, periodEnd *time.Time) (*models.Subscription, error) {
	var s models.Subscription
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (organization_id, plan, current_period_end)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (organization_id)
		 DO UPDATE SET plan = EXCLUDED.plan, current_period_end = EXCLUDED.current_period_end, updated_at = NOW()
		 RETURNING id, organization_id, plan, current_period_end, created_at, updated_at`,
		orgID, string(plan), periodEnd).
		Scan(&s.ID, &s.OrganizationID, &s.Plan, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
