package contacts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles contact persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a contacts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contactCols = `id, organization_id, company_id, full_name, email, phone, created_at, updated_at`

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.OrganizationID, &c.CompanyID, &c.FullName, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all contacts of an organization, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Contact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.CompanyID, &c.FullName, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Get returns one contact scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Contact, error) {
	return scanContact(r.pool.QueryRow(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE id = $1 AND organization_id = $2`, id, orgID))
}

// Create inserts a contact.
func (r *Repository) Create(ctx context.Context, c *models.Contact) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO contacts (organization_id, company_id, full_name, email, phone)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		c.OrganizationID, c.CompanyID, c.FullName, c.Email, c.Phone).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// Update rewrites a contact's mutable fields. Returns false when no row
// matched the (id, org) pair.
func (r *Repository) Update(ctx context.Context, c *models.Contact) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE contacts SET company_id = $3, full_name = $4, email = $5, phone = $6, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		c.ID, c.OrganizationID, c.CompanyID, c.FullName, c.Email, c.Phone)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a contact scoped to the organization.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM contacts WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompanyExists reports whether a company id belongs to the organization.
func (r *Repository) CompanyExists(ctx context.Context, orgID, companyID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1 AND organization_id = $2)`,
		companyID, orgID).Scan(&ok)
	return ok, err
}
