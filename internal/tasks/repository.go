package tasks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles task persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskCols = `id, organization_id, contact_id, assignee_id, title, due_at, done, created_at, updated_at`

// List returns all tasks of an organization, pending first, soonest due first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE organization_id = $1
		 ORDER BY done, due_at NULLS LAST, created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.ContactID, &t.AssigneeID,
			&t.Title, &t.DueAt, &t.Done, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Get returns one task scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.pool.QueryRow(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&t.ID, &t.OrganizationID, &t.ContactID, &t.AssigneeID,
			&t.Title, &t.DueAt, &t.Done, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a task.
func (r *Repository) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tasks (organization_id, contact_id, assignee_id, title, due_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, done, created_at, updated_at`,
		t.OrganizationID, t.ContactID, t.AssigneeID, t.Title, t.DueAt).
		Scan(&t.ID, &t.Done, &t.CreatedAt, &t.UpdatedAt)
}

// Update rewrites a task's mutable fields, done flag included.
func (r *Repository) Update(ctx context.Context, t *models.Task) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET contact_id = $3, assignee_id = $4, title = $5, due_at = $6, done = $7, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		t.ID, t.OrganizationID, t.ContactID, t.AssigneeID, t.Title, t.DueAt, t.Done)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a task scoped to the organization.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AssigneeIsMember reports whether a user has an accepted membership in the
// organization.
func (r *Repository) AssigneeIsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM organization_members
		 WHERE organization_id = $1 AND user_id = $2 AND status = $3)`,
		orgID, userID, models.MemberStatusAccepted).Scan(&ok)
	return ok, err
}

// ContactExists reports whether a contact id belongs to the organization.
func (r *Repository) ContactExists(ctx context.Context, orgID, contactID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE id = $1 AND organization_id = $2)`,
		contactID, orgID).Scan(&ok)
	return ok, err
}
