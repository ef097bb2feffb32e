package tasks

import (
	"context"
	"strings"
	"time"

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

// Handler handles task HTTP endpoints. Tasks are unmetered.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
}

func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc}
}

// UpsertRequest is the body for task create and update.
type UpsertRequest struct {
	Title      string     `json:"title" binding:"required"`
	ContactID  *uuid.UUID `json:"contact_id"`
	AssigneeID *uuid.UUID `json:"assignee_id"`
	DueAt      *time.Time `json:"due_at"`
	Done       bool       `json:"done"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("title required")
	}
	req.Title = strings.TrimSpace(req.Title)
	if len(req.Title) < 1 || len(req.Title) > 255 {
		return apperr.Validation("title must be 1-255 characters")
	}
	return nil
}

// checkLinks verifies contact and assignee references stay inside the tenant.
func (h *Handler) checkLinks(ctx context.Context, orgID uuid.UUID, req *UpsertRequest) error {
	if req.ContactID != nil {
		ok, err := h.repo.ContactExists(ctx, orgID, *req.ContactID)
		if err != nil {
			return apperr.External("contact lookup", err)
		}
		if !ok {
			return apperr.Validation("contact_id does not reference a contact in this organization")
		}
	}
	if req.AssigneeID != nil {
		ok, err := h.repo.AssigneeIsMember(ctx, orgID, *req.AssigneeID)
		if err != nil {
			return apperr.External("assignee lookup", err)
		}
		if !ok {
			return apperr.Validation("assignee_id does not reference a member of this organization")
		}
	}
	return nil
}

// List handles GET /orgs/:slug/tasks.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindTasks.For(ac.OrgID), tags.TasksRead(ac.OrgID),
		func(ctx context.Context) ([]models.Task, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list tasks", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/tasks/:id.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid task id"))
		return
	}
	t, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get task", err))
		return
	}
	if t == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, t)
}

// Create handles POST /orgs/:slug/tasks.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var task *models.Task
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceTask,
		Action:   authz.ActionCreate,
		Validate: func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.checkLinks(ctx, ac.OrgID, &req); err != nil {
				return err
			}
			task = &models.Task{
				OrganizationID: ac.OrgID,
				ContactID:      req.ContactID,
				AssigneeID:     req.AssigneeID,
				Title:          req.Title,
				DueAt:          req.DueAt,
			}
			if err := h.repo.Create(ctx, task); err != nil {
				return apperr.External("create task", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.TasksWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Update handles PUT /orgs/:slug/tasks/:id, including marking done.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var task *models.Task
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceTask,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid task id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.checkLinks(ctx, ac.OrgID, &req); err != nil {
				return err
			}
			task = &models.Task{
				ID:             id,
				OrganizationID: ac.OrgID,
				ContactID:      req.ContactID,
				AssigneeID:     req.AssigneeID,
				Title:          req.Title,
				DueAt:          req.DueAt,
				Done:           req.Done,
			}
			found, err := h.repo.Update(ctx, task)
			if err != nil {
				return apperr.External("update task", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.TasksWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, task)
}

// Delete handles DELETE /orgs/:slug/tasks/:id. Not a sensitive delete.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceTask,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid task id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete task", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.TasksWrite(ac.OrgID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
