package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal status values.
const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"
)

// Pipeline is an ordered set of stages deals move through. Every
// organization gets a default pipeline at creation.
type Pipeline struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Name           string          `json:"name"`
	IsDefault      bool            `json:"is_default"`
	Stages         []PipelineStage `json:"stages,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PipelineStage is one column of a pipeline.
type PipelineStage struct {
	ID         uuid.UUID `json:"id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Deal is an opportunity in a pipeline stage.
type Deal struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	PipelineID     uuid.UUID  `json:"pipeline_id"`
	StageID        uuid.UUID  `json:"stage_id"`
	ContactID      *uuid.UUID `json:"contact_id,omitempty"`
	Title          string     `json:"title"`
	ValueCents     int64      `json:"value_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	LostReasonID   *uuid.UUID `json:"lost_reason_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DealLostReason is an org-defined label attached to lost deals.
type DealLostReason struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Label          string    `json:"label"`
	CreatedAt      time.Time `json:"created_at"`
}
