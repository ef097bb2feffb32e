package deals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles deal, pipeline, and lost-reason persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a deals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const dealCols = `id, organization_id, pipeline_id, stage_id, contact_id, title,
	value_cents, currency, status, lost_reason_id, created_at, updated_at`

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.OrganizationID, &d.PipelineID, &d.StageID, &d.ContactID, &d.Title,
		&d.ValueCents, &d.Currency, &d.Status, &d.LostReasonID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetPipeline returns the organization's default pipeline with ordered stages,
// or nil when none exists.
func (r *Repository) GetPipeline(ctx context.Context, orgID uuid.UUID) (*models.Pipeline, error) {
	var p models.Pipeline
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, is_default, created_at, updated_at
		 FROM pipelines WHERE organization_id = $1 AND is_default = TRUE`, orgID).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, pipeline_id, name, position, created_at, updated_at
		 FROM pipeline_stages WHERE pipeline_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s models.PipelineStage
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Position, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, s)
	}
	return &p, rows.Err()
}

// StageBelongsTo reports whether a stage is part of one of the org's
// pipelines.
func (r *Repository) StageBelongsTo(ctx context.Context, orgID, stageID uuid.UUID) (uuid.UUID, bool, error) {
	var pipelineID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT s.pipeline_id FROM pipeline_stages s
		 INNER JOIN pipelines p ON p.id = s.pipeline_id
		 WHERE s.id = $1 AND p.organization_id = $2`, stageID, orgID).Scan(&pipelineID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return pipelineID, true, nil
}

// List returns all deals of an organization, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Deal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+dealCols+` FROM deals WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Deal
	for rows.Next() {
		var d models.Deal
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.PipelineID, &d.StageID, &d.ContactID, &d.Title,
			&d.ValueCents, &d.Currency, &d.Status, &d.LostReasonID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Get returns one deal scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.pool.QueryRow(ctx,
		`SELECT `+dealCols+` FROM deals WHERE id = $1 AND organization_id = $2`, id, orgID))
}

// Create inserts an open deal.
func (r *Repository) Create(ctx context.Context, d *models.Deal) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO deals (organization_id, pipeline_id, stage_id, contact_id, title, value_cents, currency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, status, created_at, updated_at`,
		d.OrganizationID, d.PipelineID, d.StageID, d.ContactID, d.Title, d.ValueCents, d.Currency).
		Scan(&d.ID, &d.Status, &d.CreatedAt, &d.UpdatedAt)
}

// Update rewrites a deal's editable fields. Stage and status move through
// MoveStage and MarkLost instead.
func (r *Repository) Update(ctx context.Context, d *models.Deal) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE deals SET contact_id = $3, title = $4, value_cents = $5, currency = $6, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		d.ID, d.OrganizationID, d.ContactID, d.Title, d.ValueCents, d.Currency)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MoveStage moves an open deal to another stage. A move into the final stage
// marks the deal won. Returns nil when the deal is missing or closed.
func (r *Repository) MoveStage(ctx context.Context, orgID, dealID, stageID uuid.UUID, won bool) (*models.Deal, error) {
	status := models.DealStatusOpen
	if won {
		status = models.DealStatusWon
	}
	return scanDeal(r.pool.QueryRow(ctx,
		`UPDATE deals SET stage_id = $3, status = $4, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND status = $5
		 RETURNING `+dealCols, dealID, orgID, stageID, status, models.DealStatusOpen))
}

// IsFinalStage reports whether stageID is the last stage of its pipeline.
func (r *Repository) IsFinalStage(ctx context.Context, stageID uuid.UUID) (bool, error) {
	var final bool
	err := r.pool.QueryRow(ctx,
		`SELECT s.position = (SELECT MAX(position) FROM pipeline_stages WHERE pipeline_id = s.pipeline_id)
		 FROM pipeline_stages s WHERE s.id = $1`, stageID).Scan(&final)
	return final, err
}

// MarkLost closes an open deal as lost with an optional reason. Returns nil
// when the deal is missing or already closed.
func (r *Repository) MarkLost(ctx context.Context, orgID, dealID uuid.UUID, reasonID *uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.pool.QueryRow(ctx,
		`UPDATE deals SET status = $3, lost_reason_id = $4, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND status = $5
		 RETURNING `+dealCols, dealID, orgID, models.DealStatusLost, reasonID, models.DealStatusOpen))
}

// Delete removes a deal scoped to the organization.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListLostReasons returns the org's lost-reason labels.
func (r *Repository) ListLostReasons(ctx context.Context, orgID uuid.UUID) ([]models.DealLostReason, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, label, created_at
		 FROM deal_lost_reasons WHERE organization_id = $1 ORDER BY label`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.DealLostReason
	for rows.Next() {
		var lr models.DealLostReason
		if err := rows.Scan(&lr.ID, &lr.OrganizationID, &lr.Label, &lr.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, lr)
	}
	return list, rows.Err()
}

// CreateLostReason inserts a lost-reason label.
func (r *Repository) CreateLostReason(ctx context.Context, lr *models.DealLostReason) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO deal_lost_reasons (organization_id, label) VALUES ($1, $2)
		 RETURNING id, created_at`, lr.OrganizationID, lr.Label).
		Scan(&lr.ID, &lr.CreatedAt)
}

// LostReasonExists reports whether a lost-reason id belongs to the org.
func (r *Repository) LostReasonExists(ctx context.Context, orgID, reasonID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deal_lost_reasons WHERE id = $1 AND organization_id = $2)`,
		reasonID, orgID).Scan(&ok)
	return ok, err
}

// ContactExists reports whether a contact id belongs to the org.
func (r *Repository) ContactExists(ctx context.Context, orgID, contactID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE id = $1 AND organization_id = $2)`,
		contactID, orgID).Scan(&ok)
	return ok, err
}
