package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles product persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productCols = `id, organization_id, name, description, price_cents, currency, active, created_at, updated_at`

// List returns all products of an organization, alphabetically.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productCols+` FROM products WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description,
			&p.PriceCents, &p.Currency, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Get returns one product scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description,
			&p.PriceCents, &p.Currency, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a product.
func (r *Repository) Create(ctx context.Context, p *models.Product) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO products (organization_id, name, description, price_cents, currency, active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		p.OrganizationID, p.Name, p.Description, p.PriceCents, p.Currency, p.Active).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Update rewrites a product's mutable fields.
func (r *Repository) Update(ctx context.Context, p *models.Product) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $3, description = $4, price_cents = $5, currency = $6, active = $7, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		p.ID, p.OrganizationID, p.Name, p.Description, p.PriceCents, p.Currency, p.Active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a product scoped to the organization.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
