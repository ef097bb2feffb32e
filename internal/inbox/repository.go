package inbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kronos-crm/backend/internal/models"
)

// Repository handles inbox, conversation, and message persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an inbox repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all inboxes of an organization.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.Inbox, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, channel, COALESCE(phone_number, ''), created_at, updated_at
		 FROM inboxes WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Inbox
	for rows.Next() {
		var in models.Inbox
		if err := rows.Scan(&in.ID, &in.OrganizationID, &in.Name, &in.Channel, &in.PhoneNumber, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

// Get returns one inbox scoped to the organization, or nil.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Inbox, error) {
	var in models.Inbox
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, channel, COALESCE(phone_number, ''), created_at, updated_at
		 FROM inboxes WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&in.ID, &in.OrganizationID, &in.Name, &in.Channel, &in.PhoneNumber, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// GetByID returns an inbox by id alone, for provider webhooks that carry no
// tenant context, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Inbox, error) {
	var in models.Inbox
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, channel, COALESCE(phone_number, ''), created_at, updated_at
		 FROM inboxes WHERE id = $1`, id).
		Scan(&in.ID, &in.OrganizationID, &in.Name, &in.Channel, &in.PhoneNumber, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// Create inserts an inbox.
func (r *Repository) Create(ctx context.Context, in *models.Inbox) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO inboxes (organization_id, name, channel, phone_number)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING id, created_at, updated_at`,
		in.OrganizationID, in.Name, in.Channel, in.PhoneNumber).
		Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
}

// Update rewrites an inbox's mutable fields.
func (r *Repository) Update(ctx context.Context, in *models.Inbox) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE inboxes SET name = $3, phone_number = NULLIF($4, ''), updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		in.ID, in.OrganizationID, in.Name, in.PhoneNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an inbox and, via cascade, its conversations and messages.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM inboxes WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether an inbox id belongs to the organization.
func (r *Repository) Exists(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inboxes WHERE id = $1 AND organization_id = $2)`, id, orgID).Scan(&ok)
	return ok, err
}

// ListConversations returns an inbox's conversations, most recent first.
func (r *Repository) ListConversations(ctx context.Context, orgID, inboxID uuid.UUID) ([]models.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, inbox_id, contact_id, remote_number, last_message_at, created_at
		 FROM conversations WHERE inbox_id = $1 AND organization_id = $2
		 ORDER BY last_message_at DESC NULLS LAST, created_at DESC`, inboxID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Conversation
	for rows.Next() {
		var cv models.Conversation
		if err := rows.Scan(&cv.ID, &cv.OrganizationID, &cv.InboxID, &cv.ContactID, &cv.RemoteNumber, &cv.LastMessageAt, &cv.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, cv)
	}
	return list, rows.Err()
}

// GetConversation returns one conversation scoped to the organization, or nil.
func (r *Repository) GetConversation(ctx context.Context, orgID, id uuid.UUID) (*models.Conversation, error) {
	var cv models.Conversation
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, inbox_id, contact_id, remote_number, last_message_at, created_at
		 FROM conversations WHERE id = $1 AND organization_id = $2`, id, orgID).
		Scan(&cv.ID, &cv.OrganizationID, &cv.InboxID, &cv.ContactID, &cv.RemoteNumber, &cv.LastMessageAt, &cv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// GetOrCreateConversation finds the conversation for a remote number in an
// inbox, creating it on first contact.
func (r *Repository) GetOrCreateConversation(ctx context.Context, orgID, inboxID uuid.UUID, remoteNumber string) (*models.Conversation, bool, error) {
	var cv models.Conversation
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, inbox_id, contact_id, remote_number, last_message_at, created_at
		 FROM conversations WHERE inbox_id = $1 AND remote_number = $2`, inboxID, remoteNumber).
		Scan(&cv.ID, &cv.OrganizationID, &cv.InboxID, &cv.ContactID, &cv.RemoteNumber, &cv.LastMessageAt, &cv.CreatedAt)
	if err == nil {
		return &cv, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Link a contact automatically when the number matches one.
	err = r.pool.QueryRow(ctx,
		`INSERT INTO conversations (organization_id, inbox_id, contact_id, remote_number)
		 VALUES ($1, $2,
		         (SELECT id FROM contacts WHERE organization_id = $1 AND phone = $3 LIMIT 1),
		         $3)
		 RETURNING id, organization_id, inbox_id, contact_id, remote_number, last_message_at, created_at`,
		orgID, inboxID, remoteNumber).
		Scan(&cv.ID, &cv.OrganizationID, &cv.InboxID, &cv.ContactID, &cv.RemoteNumber, &cv.LastMessageAt, &cv.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	return &cv, true, nil
}

// ListMessages returns a conversation's messages, oldest first.
func (r *Repository) ListMessages(ctx context.Context, orgID, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, conversation_id, direction, body, status, COALESCE(external_id, ''), created_at, updated_at
		 FROM messages WHERE conversation_id = $1 AND organization_id = $2
		 ORDER BY created_at`, conversationID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.ConversationID, &m.Direction, &m.Body, &m.Status, &m.ExternalID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// CreateMessage inserts a message and bumps the conversation timestamp in one
// transaction.
func (r *Repository) CreateMessage(ctx context.Context, m *models.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (organization_id, conversation_id, direction, body, status, external_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		 RETURNING id, created_at, updated_at`,
		m.OrganizationID, m.ConversationID, m.Direction, m.Body, m.Status, m.ExternalID).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_at = NOW() WHERE id = $1`, m.ConversationID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetMessageStatus marks a message sent or failed, recording the provider's
// external id when present. Used by the worker after delivery attempts.
func (r *Repository) SetMessageStatus(ctx context.Context, messageID uuid.UUID, status, externalID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET status = $2, external_id = COALESCE(NULLIF($3, ''), external_id), updated_at = NOW()
		 WHERE id = $1`, messageID, status, externalID)
	return err
}
