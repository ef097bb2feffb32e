package contacts

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

// Handler handles contact HTTP endpoints.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
}

// NewHandler creates a contacts handler.
func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc}
}

// UpsertRequest is the body for contact create and update.
type UpsertRequest struct {
	FullName  string     `json:"full_name" binding:"required"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CompanyID *uuid.UUID `json:"company_id"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("full_name required")
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if len(req.FullName) < 1 || len(req.FullName) > 255 {
		return apperr.Validation("full_name must be 1-255 characters")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	return nil
}

// checkCompany verifies an optional company link stays inside the tenant.
func (h *Handler) checkCompany(ctx context.Context, orgID uuid.UUID, companyID *uuid.UUID) error {
	if companyID == nil {
		return nil
	}
	ok, err := h.repo.CompanyExists(ctx, orgID, *companyID)
	if err != nil {
		return apperr.External("company lookup", err)
	}
	if !ok {
		return apperr.Validation("company_id does not reference a company in this organization")
	}
	return nil
}

// List handles GET /orgs/:slug/contacts.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindContacts.For(ac.OrgID), tags.ContactsRead(ac.OrgID),
		func(ctx context.Context) ([]models.Contact, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list contacts", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/contacts/:id. Detail reads are uncached; the
// collection cache covers the hot path.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid contact id"))
		return
	}
	contact, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get contact", err))
		return
	}
	if contact == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, contact)
}

// Create handles POST /orgs/:slug/contacts.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var contact *models.Contact
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceContact,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityContact,
		Validate:    func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.checkCompany(ctx, ac.OrgID, req.CompanyID); err != nil {
				return err
			}
			contact = &models.Contact{
				OrganizationID: ac.OrgID,
				CompanyID:      req.CompanyID,
				FullName:       req.FullName,
				Email:          req.Email,
				Phone:          req.Phone,
			}
			if err := h.repo.Create(ctx, contact); err != nil {
				return apperr.External("create contact", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ContactsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contact)
}

// Update handles PUT /orgs/:slug/contacts/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var contact *models.Contact
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceContact,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid contact id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.checkCompany(ctx, ac.OrgID, req.CompanyID); err != nil {
				return err
			}
			contact = &models.Contact{
				ID:             id,
				OrganizationID: ac.OrgID,
				CompanyID:      req.CompanyID,
				FullName:       req.FullName,
				Email:          req.Email,
				Phone:          req.Phone,
			}
			found, err := h.repo.Update(ctx, contact)
			if err != nil {
				return apperr.External("update contact", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ContactsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, contact)
}

// Delete handles DELETE /orgs/:slug/contacts/:id. Denied to plain members.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceContact,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid contact id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete contact", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ContactsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
