package models

import (
	"time"

	"github.com/google/uuid"
)

// Message direction and status values.
const (
	MessageDirectionIn  = "in"
	MessageDirectionOut = "out"

	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// Inbox is a messaging channel endpoint (WhatsApp number) owned by an org.
type Inbox struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Channel        string    `json:"channel"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Conversation is a message thread with one remote number in an inbox.
type Conversation struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	InboxID        uuid.UUID  `json:"inbox_id"`
	ContactID      *uuid.UUID `json:"contact_id,omitempty"`
	RemoteNumber   string     `json:"remote_number"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Message is one inbound or outbound message in a conversation. Outbound
// messages start pending and are marked sent/failed by the worker.
type Message struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Body           string    `json:"body"`
	Status         string    `json:"status"`
	ExternalID     string    `json:"external_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
