package inbox

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kronos-crm/backend/internal/action"
	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/middleware"
	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/internal/realtime"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/queue"
	"github.com/kronos-crm/backend/pkg/response"
)

// Handler handles inbox, conversation, and message HTTP endpoints. Outbound
// sends are asynchronous: the message row is created pending, the worker
// delivers it, and connected dashboards get the status over WebSocket.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
	jobs     *queue.Queue
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewHandler creates an inbox handler.
func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache, jobs *queue.Queue, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc, jobs: jobs, hub: hub, logger: logger}
}

// UpsertRequest is the body for inbox create and update.
type UpsertRequest struct {
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phone_number"`
}

// SendRequest is the body for POST .../conversations/:id/messages.
type SendRequest struct {
	Body string `json:"body" binding:"required"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("name required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 255 {
		return apperr.Validation("name must be 1-255 characters")
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	return nil
}

// List handles GET /orgs/:slug/inboxes.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindInboxes.For(ac.OrgID), tags.InboxesRead(ac.OrgID),
		func(ctx context.Context) ([]models.Inbox, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list inboxes", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/inboxes/:id.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid inbox id"))
		return
	}
	in, err := h.repo.Get(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get inbox", err))
		return
	}
	if in == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, in)
}

// Create handles POST /orgs/:slug/inboxes. Inbox quota applies.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var in *models.Inbox
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceInbox,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityInbox,
		Validate:    func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			in = &models.Inbox{
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Channel:        "whatsapp",
				PhoneNumber:    req.PhoneNumber,
			}
			if err := h.repo.Create(ctx, in); err != nil {
				return apperr.External("create inbox", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.InboxWrite(ac.OrgID, in.ID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, in)
}

// Update handles PUT /orgs/:slug/inboxes/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var in *models.Inbox
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceInbox,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid inbox id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			in = &models.Inbox{
				ID:             id,
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Channel:        "whatsapp",
				PhoneNumber:    req.PhoneNumber,
			}
			found, err := h.repo.Update(ctx, in)
			if err != nil {
				return apperr.External("update inbox", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.InboxWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, in)
}

// Delete handles DELETE /orgs/:slug/inboxes/:id. Cascades conversations and
// messages.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceInbox,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid inbox id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete inbox", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.InboxWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListConversations handles GET /orgs/:slug/inboxes/:id/conversations. The
// tenant check runs against the store before the cached view is served; the
// cache key alone is guessable.
func (h *Handler) ListConversations(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid inbox id"))
		return
	}
	ok, err := h.repo.Exists(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("inbox lookup", err))
		return
	}
	if !ok {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindInbox.For(id)+":conversations", tags.InboxRead(id),
		func(ctx context.Context) ([]models.Conversation, error) {
			return h.repo.ListConversations(ctx, ac.OrgID, id)
		})
	if err != nil {
		response.Error(c, apperr.External("list conversations", err))
		return
	}
	response.OK(c, list)
}

// ListMessages handles GET /orgs/:slug/conversations/:id/messages.
func (h *Handler) ListMessages(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid conversation id"))
		return
	}
	cv, err := h.repo.GetConversation(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("conversation lookup", err))
		return
	}
	if cv == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindInbox.For(cv.InboxID)+":messages:"+id.String(), tags.InboxRead(cv.InboxID),
		func(ctx context.Context) ([]models.Message, error) {
			return h.repo.ListMessages(ctx, ac.OrgID, id)
		})
	if err != nil {
		response.Error(c, apperr.External("list messages", err))
		return
	}
	response.OK(c, list)
}

// SendMessage handles POST /orgs/:slug/conversations/:id/messages. The row is
// persisted pending before the delivery job is enqueued, so a crashed worker
// never loses the message, only delays it.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var msg *models.Message
	var cv *models.Conversation
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceInbox,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid conversation id")
			}
			if bindErr != nil {
				return apperr.Validation("body required")
			}
			req.Body = strings.TrimSpace(req.Body)
			if req.Body == "" || len(req.Body) > 4096 {
				return apperr.Validation("body must be 1-4096 characters")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			var err error
			cv, err = h.repo.GetConversation(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("conversation lookup", err)
			}
			if cv == nil {
				return apperr.ErrNotFound
			}
			msg = &models.Message{
				OrganizationID: ac.OrgID,
				ConversationID: cv.ID,
				Direction:      models.MessageDirectionOut,
				Body:           req.Body,
				Status:         models.MessageStatusPending,
			}
			if err := h.repo.CreateMessage(ctx, msg); err != nil {
				return apperr.External("create message", err)
			}
			if err := h.jobs.EnqueueOutboundMessage(ctx, queue.OutboundMessagePayload{
				OrganizationID: ac.OrgID,
				InboxID:        cv.InboxID,
				MessageID:      msg.ID,
				ConversationID: cv.ID,
				To:             cv.RemoteNumber,
				Body:           req.Body,
			}); err != nil {
				return apperr.External("enqueue message", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.InboxWrite(ac.OrgID, cv.InboxID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.hub.Broadcast(msg.OrganizationID, realtime.EventMessageCreated, msg)
	response.Created(c, msg)
}
