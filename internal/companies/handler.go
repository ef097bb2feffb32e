package companies

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kronos-crm/backend/internal/action"
	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/middleware"
	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/response"
)

// Handler handles company HTTP endpoints. Companies are unmetered: no quota
// entity applies.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
}

func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc}
}

// UpsertRequest is the body for company create and update.
type UpsertRequest struct {
	Name   string `json:"name" binding:"required"`
	Domain string `json:"domain"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("name required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 255 {
		return apperr.Validation("name must be 1-255 characters")
	}
	req.Domain = strings.ToLower(strings.TrimSpace(req.Domain))
	return nil
}

// List handles GET /orgs/:slug/companies.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindCompanies.For(ac.OrgID), tags.CompaniesRead(ac.OrgID),
		func(ctx context.Context) ([]models.Company, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list companies", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/companies/:id.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid company id"))
		return
	}
	co, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get company", err))
		return
	}
	if co == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, co)
}

// Create handles POST /orgs/:slug/companies.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var co *models.Company
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceCompany,
		Action:   authz.ActionCreate,
		Validate: func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			co = &models.Company{OrganizationID: ac.OrgID, Name: req.Name, Domain: req.Domain}
			if err := h.repo.Create(ctx, co); err != nil {
				return apperr.External("create company", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.CompaniesWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, co)
}

// Update handles PUT /orgs/:slug/companies/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var co *models.Company
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceCompany,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid company id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			co = &models.Company{ID: id, OrganizationID: ac.OrgID, Name: req.Name, Domain: req.Domain}
			found, err := h.repo.Update(ctx, co)
			if err != nil {
				return apperr.External("update company", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.CompaniesWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, co)
}

// Delete handles DELETE /orgs/:slug/companies/:id. Denied to plain members.
// Contact rows survive with their company link cleared, so the cached contact
// list goes stale too.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceCompany,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid company id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete company", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			return append(tags.CompaniesWrite(ac.OrgID), tags.ContactsWrite(ac.OrgID)...)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
