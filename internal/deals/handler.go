package deals

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kronos-crm/backend/internal/action"
	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/middleware"
	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/response"
)

// Handler handles deal and pipeline HTTP endpoints.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
}

// NewHandler creates a deals handler.
func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc}
}

// Board is the pipeline view: ordered stage columns with their open deals.
type Board struct {
	Pipeline *models.Pipeline `json:"pipeline"`
	Columns  []BoardColumn    `json:"columns"`
}

// BoardColumn is one stage column of the board.
type BoardColumn struct {
	Stage models.PipelineStage `json:"stage"`
	Deals []models.Deal        `json:"deals"`
}

// CreateRequest is the body for POST /orgs/:slug/deals.
type CreateRequest struct {
	Title      string     `json:"title" binding:"required"`
	StageID    uuid.UUID  `json:"stage_id" binding:"required"`
	ContactID  *uuid.UUID `json:"contact_id"`
	ValueCents int64      `json:"value_cents"`
	Currency   string     `json:"currency"`
}

// UpdateRequest is the body for PUT /orgs/:slug/deals/:id.
type UpdateRequest struct {
	Title      string     `json:"title" binding:"required"`
	ContactID  *uuid.UUID `json:"contact_id"`
	ValueCents int64      `json:"value_cents"`
	Currency   string     `json:"currency"`
}

// MoveRequest is the body for POST /orgs/:slug/deals/:id/move.
type MoveRequest struct {
	StageID uuid.UUID `json:"stage_id" binding:"required"`
}

// LostRequest is the body for POST /orgs/:slug/deals/:id/lost.
type LostRequest struct {
	ReasonID *uuid.UUID `json:"reason_id"`
}

// LostReasonRequest is the body for POST /orgs/:slug/deal-lost-reasons.
type LostReasonRequest struct {
	Label string `json:"label" binding:"required"`
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len(title) < 1 || len(title) > 255 {
		return "", apperr.Validation("title must be 1-255 characters")
	}
	return title, nil
}

func normalizeCurrency(cur string) string {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "" {
		cur = "USD"
	}
	return cur
}

// checkContact verifies an optional contact link stays inside the tenant.
func (h *Handler) checkContact(ctx context.Context, orgID uuid.UUID, contactID *uuid.UUID) error {
	if contactID == nil {
		return nil
	}
	ok, err := h.repo.ContactExists(ctx, orgID, *contactID)
	if err != nil {
		return apperr.External("contact lookup", err)
	}
	if !ok {
		return apperr.Validation("contact_id does not reference a contact in this organization")
	}
	return nil
}

// Pipeline handles GET /orgs/:slug/pipeline: the full board.
func (h *Handler) Pipeline(c *gin.Context) {
	ac := middleware.OrgContext(c)
	board, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindPipeline.For(ac.OrgID), tags.PipelineRead(ac.OrgID),
		func(ctx context.Context) (*Board, error) {
			return h.loadBoard(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("load pipeline", err))
		return
	}
	if board == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, board)
}

func (h *Handler) loadBoard(ctx context.Context, orgID uuid.UUID) (*Board, error) {
	p, err := h.repo.GetPipeline(ctx, orgID)
	if err != nil || p == nil {
		return nil, err
	}
	deals, err := h.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byStage := make(map[uuid.UUID][]models.Deal)
	for _, d := range deals {
		if d.Status == models.DealStatusOpen {
			byStage[d.StageID] = append(byStage[d.StageID], d)
		}
	}
	board := &Board{Pipeline: p}
	for _, s := range p.Stages {
		board.Columns = append(board.Columns, BoardColumn{Stage: s, Deals: byStage[s.ID]})
	}
	return board, nil
}

// List handles GET /orgs/:slug/deals.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindDeals.For(ac.OrgID), tags.DealsRead(ac.OrgID),
		func(ctx context.Context) ([]models.Deal, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list deals", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/deals/:id.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid deal id"))
		return
	}
	deal, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get deal", err))
		return
	}
	if deal == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, deal)
}

// Create handles POST /orgs/:slug/deals. Deal quota applies.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	bindErr := c.ShouldBindJSON(&req)

	var deal *models.Deal
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceDeal,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityDeal,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("title and stage_id required")
			}
			title, err := validateTitle(req.Title)
			if err != nil {
				return err
			}
			req.Title = title
			if req.ValueCents < 0 {
				return apperr.Validation("value_cents must not be negative")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			pipelineID, ok, err := h.repo.StageBelongsTo(ctx, ac.OrgID, req.StageID)
			if err != nil {
				return apperr.External("stage lookup", err)
			}
			if !ok {
				return apperr.Validation("stage_id does not reference a stage in this organization")
			}
			if err := h.checkContact(ctx, ac.OrgID, req.ContactID); err != nil {
				return err
			}
			deal = &models.Deal{
				OrganizationID: ac.OrgID,
				PipelineID:     pipelineID,
				StageID:        req.StageID,
				ContactID:      req.ContactID,
				Title:          req.Title,
				ValueCents:     req.ValueCents,
				Currency:       normalizeCurrency(req.Currency),
			}
			if err := h.repo.Create(ctx, deal); err != nil {
				return apperr.External("create deal", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.DealsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, deal)
}

// Update handles PUT /orgs/:slug/deals/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var deal *models.Deal
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceDeal,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid deal id")
			}
			if bindErr != nil {
				return apperr.Validation("title required")
			}
			title, err := validateTitle(req.Title)
			if err != nil {
				return err
			}
			req.Title = title
			if req.ValueCents < 0 {
				return apperr.Validation("value_cents must not be negative")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.checkContact(ctx, ac.OrgID, req.ContactID); err != nil {
				return err
			}
			deal = &models.Deal{
				ID:             id,
				OrganizationID: ac.OrgID,
				ContactID:      req.ContactID,
				Title:          req.Title,
				ValueCents:     req.ValueCents,
				Currency:       normalizeCurrency(req.Currency),
			}
			found, err := h.repo.Update(ctx, deal)
			if err != nil {
				return apperr.External("update deal", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.DealsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, deal)
}

// Move handles POST /orgs/:slug/deals/:id/move. Moving into the pipeline's
// final stage marks the deal won; closed deals cannot move.
func (h *Handler) Move(c *gin.Context) {
	var req MoveRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var deal *models.Deal
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceDeal,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid deal id")
			}
			if bindErr != nil {
				return apperr.Validation("stage_id required")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			_, ok, err := h.repo.StageBelongsTo(ctx, ac.OrgID, req.StageID)
			if err != nil {
				return apperr.External("stage lookup", err)
			}
			if !ok {
				return apperr.Validation("stage_id does not reference a stage in this organization")
			}
			won, err := h.repo.IsFinalStage(ctx, req.StageID)
			if err != nil {
				return apperr.External("stage lookup", err)
			}
			moved, err := h.repo.MoveStage(ctx, ac.OrgID, id, req.StageID, won)
			if err != nil {
				return apperr.External("move deal", err)
			}
			if moved == nil {
				return apperr.ErrNotFound
			}
			deal = moved
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.DealsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, deal)
}

// MarkLost handles POST /orgs/:slug/deals/:id/lost.
func (h *Handler) MarkLost(c *gin.Context) {
	var req LostRequest
	_ = c.ShouldBindJSON(&req) // body is optional
	id, parseErr := uuid.Parse(c.Param("id"))

	var deal *models.Deal
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceDeal,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid deal id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if req.ReasonID != nil {
				ok, err := h.repo.LostReasonExists(ctx, ac.OrgID, *req.ReasonID)
				if err != nil {
					return apperr.External("lost reason lookup", err)
				}
				if !ok {
					return apperr.Validation("reason_id does not reference a lost reason in this organization")
				}
			}
			lost, err := h.repo.MarkLost(ctx, ac.OrgID, id, req.ReasonID)
			if err != nil {
				return apperr.External("mark deal lost", err)
			}
			if lost == nil {
				return apperr.ErrNotFound
			}
			deal = lost
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.DealsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, deal)
}

// Delete handles DELETE /orgs/:slug/deals/:id. Deals are not a sensitive
// delete; members may remove them.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceDeal,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid deal id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete deal", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.DealsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListLostReasons handles GET /orgs/:slug/deal-lost-reasons.
func (h *Handler) ListLostReasons(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindDealLostReasons.For(ac.OrgID), tags.LostReasonsRead(ac.OrgID),
		func(ctx context.Context) ([]models.DealLostReason, error) {
			return h.repo.ListLostReasons(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list lost reasons", err))
		return
	}
	response.OK(c, list)
}

// CreateLostReason handles POST /orgs/:slug/deal-lost-reasons.
func (h *Handler) CreateLostReason(c *gin.Context) {
	var req LostReasonRequest
	bindErr := c.ShouldBindJSON(&req)

	var reason *models.DealLostReason
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceDeal,
		Action:   authz.ActionCreate,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("label required")
			}
			req.Label = strings.TrimSpace(req.Label)
			if len(req.Label) < 1 || len(req.Label) > 100 {
				return apperr.Validation("label must be 1-100 characters")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			reason = &models.DealLostReason{OrganizationID: ac.OrgID, Label: req.Label}
			if err := h.repo.CreateLostReason(ctx, reason); err != nil {
				return apperr.External("create lost reason", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.LostReasonsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reason)
}
