package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles organization and membership persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Default pipeline stages seeded for every new organization.
var defaultStages = []string{"Lead", "Qualified", "Proposal", "Won"}

// CreateWithOwner creates an organization together with its owner membership,
// a free-tier subscription, and the default deal pipeline, in one transaction.
func (r *Repository) CreateWithOwner(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO organizations (name, slug) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		org.Name, org.Slug).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role, status)
		 VALUES ($1, $2, $3, $4)`,
		org.ID, ownerID, string(authz.RoleOwner), models.MemberStatusAccepted)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO subscriptions (organization_id, plan) VALUES ($1, $2)`,
		org.ID, string(models.PlanFree))
	if err != nil {
		return err
	}

	var pipelineID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO pipelines (organization_id, name, is_default) VALUES ($1, 'Sales', TRUE)
		 RETURNING id`, org.ID).Scan(&pipelineID)
	if err != nil {
		return err
	}
	for i, stage := range defaultStages {
		if _, err = tx.Exec(ctx,
			`INSERT INTO pipeline_stages (pipeline_id, name, position) VALUES ($1, $2, $3)`,
			pipelineID, stage, i); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetBySlug returns an organization by slug, or nil when none exists.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	const q = `SELECT id, name, slug, created_at, updated_at FROM organizations WHERE slug = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, slug).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetByID returns an organization by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, slug, created_at, updated_at FROM organizations WHERE id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateName renames an organization. The slug never changes.
func (r *Repository) UpdateName(ctx context.Context, orgID uuid.UUID, name string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE organizations SET name = $2, updated_at = NOW() WHERE id = $1`, orgID, name)
	return err
}

// Delete removes an organization and, via cascade, all its tenant data.
func (r *Repository) Delete(ctx context.Context, orgID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
	return err
}

// OrgContext is the membership resolution result. Valid is false both when
// the organization does not exist and when the user has no accepted
// membership, so callers cannot probe for org existence.
type OrgContext struct {
	Valid bool
	OrgID uuid.UUID
	Role  authz.Role
}

// GetOrgContext resolves (user, org slug) to the caller's tenant context.
// Pure read; callers decide how to react to an invalid result.
func (r *Repository) GetOrgContext(ctx context.Context, userID uuid.UUID, slug string) (OrgContext, error) {
	const q = `SELECT o.id, m.role
		FROM organizations o
		INNER JOIN organization_members m ON m.organization_id = o.id
		WHERE o.slug = $1 AND m.user_id = $2 AND m.status = $3`
	var oc OrgContext
	var role string
	err := r.pool.QueryRow(ctx, q, slug, userID, models.MemberStatusAccepted).Scan(&oc.OrgID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrgContext{}, nil
	}
	if err != nil {
		return OrgContext{}, err
	}
	oc.Role = authz.Role(role)
	oc.Valid = oc.Role.Valid()
	return oc, nil
}

// ResolveMembership adapts GetOrgContext to the action pipeline's resolver
// contract.
func (r *Repository) ResolveMembership(ctx context.Context, userID uuid.UUID, slug string) (authz.Context, bool, error) {
	oc, err := r.GetOrgContext(ctx, userID, slug)
	if err != nil || !oc.Valid {
		return authz.Context{}, false, err
	}
	return authz.Context{UserID: userID, OrgID: oc.OrgID, Role: oc.Role}, true, nil
}

// ListForUser returns organizations the user has an accepted membership in.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	const q = `SELECT o.id, o.name, o.slug, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID, models.MemberStatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// MemberInfo is an organization member with user details.
type MemberInfo struct {
	ID       uuid.UUID  `json:"id"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name,omitempty"`
	Role     string     `json:"role"`
	Status   string     `json:"status"`
	AddedAt  time.Time  `json:"added_at"`
}

// ListMembers returns members of an organization, pending invites included.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]MemberInfo, error) {
	const q = `SELECT m.id, m.user_id, COALESCE(u.email, m.invited_email, ''), COALESCE(u.full_name, ''), m.role, m.status, m.created_at
		FROM organization_members m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []MemberInfo
	for rows.Next() {
		var m MemberInfo
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.Status, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// InviteMember creates a pending membership row with an invite token.
func (r *Repository) InviteMember(ctx context.Context, orgID uuid.UUID, email string, role authz.Role) (*models.Member, error) {
	token := uuid.New().String()
	const q = `INSERT INTO organization_members (organization_id, invited_email, invite_token, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, organization_id, invited_email, role, status, created_at, updated_at`
	var m models.Member
	err := r.pool.QueryRow(ctx, q, orgID, email, token, string(role), models.MemberStatusPending).
		Scan(&m.ID, &m.OrganizationID, &m.InvitedEmail, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InviteToken returns the invite token for a pending member row.
func (r *Repository) InviteToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(invite_token, '') FROM organization_members WHERE id = $1`, memberID).Scan(&token)
	return token, err
}

// AcceptInvite transitions a pending invite to an accepted membership bound
// to userID. Returns nil when the token is unknown or already consumed.
func (r *Repository) AcceptInvite(ctx context.Context, token string, userID uuid.UUID) (*models.Member, error) {
	const q = `UPDATE organization_members
		SET user_id = $2, status = $3, invite_token = NULL, updated_at = NOW()
		WHERE invite_token = $1 AND status = $4
		RETURNING id, organization_id, user_id, role, status, created_at, updated_at`
	var m models.Member
	err := r.pool.QueryRow(ctx, q, token, userID, models.MemberStatusAccepted, models.MemberStatusPending).
		Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveMember deletes a membership row scoped to the organization. Returns
// the removed user's id (nil for a pending invite) and whether a row existed.
func (r *Repository) RemoveMember(ctx context.Context, orgID, memberID uuid.UUID) (*uuid.UUID, bool, error) {
	const q = `DELETE FROM organization_members
		WHERE id = $1 AND organization_id = $2
		RETURNING user_id`
	var userID *uuid.UUID
	err := r.pool.QueryRow(ctx, q, memberID, orgID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return userID, true, nil
}

// GetMember returns one membership row scoped to the organization, or nil.
func (r *Repository) GetMember(ctx context.Context, orgID, memberID uuid.UUID) (*models.Member, error) {
	const q = `SELECT id, organization_id, user_id, COALESCE(invited_email, ''), role, status, created_at, updated_at
		FROM organization_members WHERE id = $1 AND organization_id = $2`
	var m models.Member
	err := r.pool.QueryRow(ctx, q, memberID, orgID).
		Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.InvitedEmail, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
