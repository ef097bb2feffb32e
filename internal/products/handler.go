package products

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

// Handler handles product HTTP endpoints.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
}

func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc}
}

// UpsertRequest is the body for product create and update.
type UpsertRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Active      *bool  `json:"active"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("name required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 255 {
		return apperr.Validation("name must be 1-255 characters")
	}
	if req.PriceCents < 0 {
		return apperr.Validation("price_cents must not be negative")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "USD"
	}
	return nil
}

func (req *UpsertRequest) active() bool {
	if req.Active == nil {
		return true
	}
	return *req.Active
}

// List handles GET /orgs/:slug/products.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindProducts.For(ac.OrgID), tags.ProductsRead(ac.OrgID),
		func(ctx context.Context) ([]models.Product, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list products", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/products/:id.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid product id"))
		return
	}
	p, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get product", err))
		return
	}
	if p == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, p)
}

// Create handles POST /orgs/:slug/products. Product quota applies.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var product *models.Product
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceProduct,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityProduct,
		Validate:    func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			product = &models.Product{
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Description:    req.Description,
				PriceCents:     req.PriceCents,
				Currency:       req.Currency,
				Active:         req.active(),
			}
			if err := h.repo.Create(ctx, product); err != nil {
				return apperr.External("create product", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ProductsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// Update handles PUT /orgs/:slug/products/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var product *models.Product
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceProduct,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid product id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			product = &models.Product{
				ID:             id,
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Description:    req.Description,
				PriceCents:     req.PriceCents,
				Currency:       req.Currency,
				Active:         req.active(),
			}
			found, err := h.repo.Update(ctx, product)
			if err != nil {
				return apperr.External("update product", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ProductsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, product)
}

// Delete handles DELETE /orgs/:slug/products/:id. Denied to plain members.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceProduct,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid product id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete product", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.ProductsWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
