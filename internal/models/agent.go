package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent connection status values for the messaging channel.
const (
	AgentDisconnected = "disconnected"
	AgentConnecting   = "connecting"
	AgentConnected    = "connected"
)

// Agent is an AI agent aggregate: the agent row plus its ordered steps and
// knowledge files. The cached detail view embeds summarized child state, so
// child writes invalidate the whole aggregate.
type Agent struct {
	ID               uuid.UUID            `json:"id"`
	OrganizationID   uuid.UUID            `json:"organization_id"`
	Name             string               `json:"name"`
	Prompt           string               `json:"prompt"`
	Enabled          bool                 `json:"enabled"`
	ConnectionStatus string               `json:"connection_status"`
	Steps            []AgentStep          `json:"steps,omitempty"`
	KnowledgeFiles   []AgentKnowledgeFile `json:"knowledge_files,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// AgentStep is one instruction in an agent's playbook.
type AgentStep struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Position    int       `json:"position"`
	Instruction string    `json:"instruction"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentKnowledgeFile is a document attached to an agent, stored in S3.
type AgentKnowledgeFile struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	S3Key       string    `json:"-"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgentConnection is the read-only connection/QR lookup result.
type AgentConnection struct {
	AgentID uuid.UUID `json:"agent_id"`
	Status  string    `json:"status"`
	QRCode  string    `json:"qr_code,omitempty"`
}
