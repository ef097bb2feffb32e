package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant boundary. All resource access is scoped to one
// organization; the slug is immutable after creation and used for routing.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership status values.
const (
	MemberStatusPending  = "pending"
	MemberStatusAccepted = "accepted"
)

// Member links a user to an organization with a role. At most one row exists
// per (organization, user); invites start as pending with an invite token and
// transition to accepted exactly once.
type Member struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	InvitedEmail   string     `json:"invited_email,omitempty"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
