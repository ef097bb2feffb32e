package agents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles agent, step, and knowledge-file persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an agents repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns agent rows of an organization without children.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Agent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, prompt, enabled, connection_status, created_at, updated_at
		 FROM agents WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Prompt,
			&a.Enabled, &a.ConnectionStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Get returns the full agent aggregate with ordered steps and knowledge
// files, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Agent, error) {
	var a models.Agent
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, prompt, enabled, connection_status, created_at, updated_at
		 FROM agents WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Prompt,
			&a.Enabled, &a.ConnectionStatus, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	steps, err := r.pool.Query(ctx,
		`SELECT id, agent_id, position, instruction, created_at, updated_at
		 FROM agent_steps WHERE agent_id = $1 ORDER BY position`, a.ID)
	if err != nil {
		return nil, err
	}
	defer steps.Close()
	for steps.Next() {
		var s models.AgentStep
		if err := steps.Scan(&s.ID, &s.AgentID, &s.Position, &s.Instruction, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		a.Steps = append(a.Steps, s)
	}
	if err := steps.Err(); err != nil {
		return nil, err
	}

	files, err := r.pool.Query(ctx,
		`SELECT id, agent_id, file_name, content_type, s3_key, size_bytes, created_at
		 FROM agent_knowledge_files WHERE agent_id = $1 ORDER BY created_at`, a.ID)
	if err != nil {
		return nil, err
	}
	defer files.Close()
	for files.Next() {
		var f models.AgentKnowledgeFile
		if err := files.Scan(&f.ID, &f.AgentID, &f.FileName, &f.ContentType, &f.S3Key, &f.SizeBytes, &f.CreatedAt); err != nil {
			return nil, err
		}
		a.KnowledgeFiles = append(a.KnowledgeFiles, f)
	}
	return &a, files.Err()
}

// Create inserts an agent.
func (r *Repository) Create(ctx context.Context, a *models.Agent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO agents (organization_id, name, prompt, enabled)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, connection_status, created_at, updated_at`,
		a.OrganizationID, a.Name, a.Prompt, a.Enabled).
		Scan(&a.ID, &a.ConnectionStatus, &a.CreatedAt, &a.UpdatedAt)
}

// Update rewrites an agent's mutable fields.
func (r *Repository) Update(ctx context.Context, a *models.Agent) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET name = $3, prompt = $4, enabled = $5, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		a.ID, a.OrganizationID, a.Name, a.Prompt, a.Enabled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an agent and, via cascade, its steps and knowledge rows.
// S3 objects are cleaned up by the handler before the row goes.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM agents WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether an agent id belongs to the organization.
func (r *Repository) Exists(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agents WHERE id = $1 AND organization_id = $2)`, id, orgID).Scan(&ok)
	return ok, err
}

// GetConnection returns the agent's channel connection status and QR code.
func (r *Repository) GetConnection(ctx context.Context, orgID, id uuid.UUID) (*models.AgentConnection, error) {
	var conn models.AgentConnection
	var qr *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, connection_status, qr_code FROM agents WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&conn.AgentID, &conn.Status, &qr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if qr != nil {
		conn.QRCode = *qr
	}
	return &conn, nil
}

// ReplaceSteps swaps an agent's playbook for the given ordered instructions
// in one transaction.
func (r *Repository) ReplaceSteps(ctx context.Context, agentID uuid.UUID, instructions []string) ([]models.AgentStep, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM agent_steps WHERE agent_id = $1`, agentID); err != nil {
		return nil, err
	}
	steps := make([]models.AgentStep, 0, len(instructions))
	for i, ins := range instructions {
		var s models.AgentStep
		err := tx.QueryRow(ctx,
			`INSERT INTO agent_steps (agent_id, position, instruction) VALUES ($1, $2, $3)
			 RETURNING id, agent_id, position, instruction, created_at, updated_at`,
			agentID, i, ins).
			Scan(&s.ID, &s.AgentID, &s.Position, &s.Instruction, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, tx.Commit(ctx)
}

// AddKnowledgeFile records an uploaded knowledge file. The id is generated by
// the caller up front because the S3 key embeds it.
func (r *Repository) AddKnowledgeFile(ctx context.Context, f *models.AgentKnowledgeFile) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO agent_knowledge_files (id, agent_id, file_name, content_type, s3_key, size_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		f.ID, f.AgentID, f.FileName, f.ContentType, f.S3Key, f.SizeBytes).Scan(&f.CreatedAt)
}

// GetKnowledgeFile returns one knowledge file, verified to belong to an agent
// of the organization, or nil.
func (r *Repository) GetKnowledgeFile(ctx context.Context, orgID, agentID, fileID uuid.UUID) (*models.AgentKnowledgeFile, error) {
	var f models.AgentKnowledgeFile
	err := r.pool.QueryRow(ctx,
		`SELECT k.id, k.agent_id, k.file_name, k.content_type, k.s3_key, k.size_bytes, k.created_at
		 FROM agent_knowledge_files k
		 INNER JOIN agents a ON a.id = k.agent_id
		 WHERE k.id = $1 AND k.agent_id = $2 AND a.organization_id = $3`,
		fileID, agentID, orgID).
		Scan(&f.ID, &f.AgentID, &f.FileName, &f.ContentType, &f.S3Key, &f.SizeBytes, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteKnowledgeFile removes a knowledge file row.
func (r *Repository) DeleteKnowledgeFile(ctx context.Context, fileID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM agent_knowledge_files WHERE id = $1`, fileID)
	return err
}

// ListKnowledgeKeys returns the S3 keys of all knowledge files of an agent.
func (r *Repository) ListKnowledgeKeys(ctx context.Context, agentID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s3_key FROM agent_knowledge_files WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
