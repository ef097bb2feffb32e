package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable item scoped to one organization.
type Product struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Task is a to-do item, optionally tied to a contact and an assignee.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ContactID      *uuid.UUID `json:"contact_id,omitempty"`
	AssigneeID     *uuid.UUID `json:"assignee_id,omitempty"`
	Title          string     `json:"title"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	Done           bool       `json:"done"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
