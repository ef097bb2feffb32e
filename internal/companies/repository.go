package companies

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles company persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all companies of an organization, alphabetically.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Company, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, domain, created_at, updated_at
		 FROM companies WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Company
	for rows.Next() {
		var co models.Company
		if err := rows.Scan(&co.ID, &co.OrganizationID, &co.Name, &co.Domain, &co.CreatedAt, &co.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, co)
	}
	return list, rows.Err()
}

// Get returns one company scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Company, error) {
	var co models.Company
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, domain, created_at, updated_at
		 FROM companies WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&co.ID, &co.OrganizationID, &co.Name, &co.Domain, &co.CreatedAt, &co.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &co, nil
}

// Create inserts a company.
func (r *Repository) Create(ctx context.Context, co *models.Company) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO companies (organization_id, name, domain)
		 VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		co.OrganizationID, co.Name, co.Domain).
		Scan(&co.ID, &co.CreatedAt, &co.UpdatedAt)
}

// Update rewrites a company's mutable fields.
func (r *Repository) Update(ctx context.Context, co *models.Company) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE companies SET name = $3, domain = $4, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		co.ID, co.OrganizationID, co.Name, co.Domain)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a company. Contacts keep their rows; the FK nulls the link.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM companies WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
