package agents

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
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/response"
	"github.com/kronos-crm/backend/pkg/storage"
)

// Handler handles AI agent HTTP endpoints, including the playbook steps and
// S3-backed knowledge files.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
	s3       *storage.S3
	logger   *zap.Logger
}

// NewHandler creates an agents handler.
func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc, s3: s3, logger: logger}
}

// UpsertRequest is the body for agent create and update.
type UpsertRequest struct {
	Name    string `json:"name" binding:"required"`
	Prompt  string `json:"prompt"`
	Enabled *bool  `json:"enabled"`
}

// StepsRequest is the body for PUT /orgs/:slug/agents/:id/steps. The playbook
// is replaced wholesale so positions always come out dense and ordered.
type StepsRequest struct {
	Instructions []string `json:"instructions" binding:"required"`
}

func (req *UpsertRequest) validate(bindErr error) error {
	if bindErr != nil {
		return apperr.Validation("name required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 255 {
		return apperr.Validation("name must be 1-255 characters")
	}
	return nil
}

func (req *UpsertRequest) enabled() bool {
	if req.Enabled == nil {
		return true
	}
	return *req.Enabled
}

// List handles GET /orgs/:slug/agents.
func (h *Handler) List(c *gin.Context) {
	ac := middleware.OrgContext(c)
	list, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindAgents.For(ac.OrgID), tags.AgentsRead(ac.OrgID),
		func(ctx context.Context) ([]models.Agent, error) {
			return h.repo.List(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list agents", err))
		return
	}
	response.OK(c, list)
}

// Get handles GET /orgs/:slug/agents/:id: the aggregate with steps and
// knowledge files. The cache key is the agent id, so the org check re-runs
// on the loaded value too.
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid agent id"))
		return
	}
	agent, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindAgent.For(id), tags.AgentRead(id),
		func(ctx context.Context) (*models.Agent, error) {
			return h.repo.Get(ctx, ac.OrgID, id)
		})
	if err != nil {
		response.Error(c, apperr.External("get agent", err))
		return
	}
	if agent == nil || agent.OrganizationID != ac.OrgID {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, agent)
}

// GetConnection handles GET /orgs/:slug/agents/:id/connection: live channel
// status and pairing QR code. Never cached.
func (h *Handler) GetConnection(c *gin.Context) {
	ac := middleware.OrgContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.Validation("invalid agent id"))
		return
	}
	conn, err := h.repo.GetConnection(c.Request.Context(), ac.OrgID, id)
	if err != nil {
		response.Error(c, apperr.External("get agent connection", err))
		return
	}
	if conn == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, conn)
}

// Create handles POST /orgs/:slug/agents. Agent quota applies.
func (h *Handler) Create(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)

	var agent *models.Agent
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceAgent,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityAgent,
		Validate:    func() error { return req.validate(bindErr) },
		Mutate: func(ctx context.Context, ac authz.Context) error {
			agent = &models.Agent{
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Prompt:         req.Prompt,
				Enabled:        req.enabled(),
			}
			if err := h.repo.Create(ctx, agent); err != nil {
				return apperr.External("create agent", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			return tags.AgentWrite(ac.OrgID, agent.ID)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, agent)
}

// Update handles PUT /orgs/:slug/agents/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpsertRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var agent *models.Agent
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceAgent,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid agent id")
			}
			return req.validate(bindErr)
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			agent = &models.Agent{
				ID:             id,
				OrganizationID: ac.OrgID,
				Name:           req.Name,
				Prompt:         req.Prompt,
				Enabled:        req.enabled(),
			}
			found, err := h.repo.Update(ctx, agent)
			if err != nil {
				return apperr.External("update agent", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.AgentWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, agent)
}

// Delete handles DELETE /orgs/:slug/agents/:id. S3 knowledge objects are
// removed best-effort before the row cascade.
func (h *Handler) Delete(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceAgent,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid agent id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			keys, err := h.repo.ListKnowledgeKeys(ctx, id)
			if err != nil {
				return apperr.External("list knowledge files", err)
			}
			found, err := h.repo.Delete(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("delete agent", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			for _, key := range keys {
				if err := h.s3.Delete(ctx, key); err != nil {
					h.logger.Warn("orphaned knowledge object", zap.String("key", key), zap.Error(err))
				}
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.AgentWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReplaceSteps handles PUT /orgs/:slug/agents/:id/steps. A child write: the
// cached aggregate and the collection both go stale.
func (h *Handler) ReplaceSteps(c *gin.Context) {
	var req StepsRequest
	bindErr := c.ShouldBindJSON(&req)
	id, parseErr := uuid.Parse(c.Param("id"))

	var steps []models.AgentStep
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceAgent,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid agent id")
			}
			if bindErr != nil {
				return apperr.Validation("instructions required")
			}
			if len(req.Instructions) > 50 {
				return apperr.Validation("at most 50 steps")
			}
			for i, ins := range req.Instructions {
				req.Instructions[i] = strings.TrimSpace(ins)
				if req.Instructions[i] == "" {
					return apperr.Validation("instructions must not be empty")
				}
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			ok, err := h.repo.Exists(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("agent lookup", err)
			}
			if !ok {
				return apperr.ErrNotFound
			}
			steps, err = h.repo.ReplaceSteps(ctx, id, req.Instructions)
			if err != nil {
				return apperr.External("replace steps", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.AgentWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, steps)
}

// UploadKnowledge handles POST /orgs/:slug/agents/:id/knowledge, a multipart
// upload streamed to S3. Also a child write.
func (h *Handler) UploadKnowledge(c *gin.Context) {
	id, parseErr := uuid.Parse(c.Param("id"))
	fileHeader, fileErr := c.FormFile("file")

	var file *models.AgentKnowledgeFile
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceAgent,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid agent id")
			}
			if fileErr != nil {
				return apperr.Validation("multipart field 'file' required")
			}
			if fileHeader.Size > storage.MaxKnowledgeFileSize {
				return apperr.Validation("file exceeds 20MB limit")
			}
			if _, ok := storage.ExtensionForType(fileHeader.Header.Get("Content-Type")); !ok {
				return apperr.Validation("unsupported content type")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			ok, err := h.repo.Exists(ctx, ac.OrgID, id)
			if err != nil {
				return apperr.External("agent lookup", err)
			}
			if !ok {
				return apperr.ErrNotFound
			}

			contentType := fileHeader.Header.Get("Content-Type")
			ext, _ := storage.ExtensionForType(contentType)
			fileID := uuid.New()
			key := storage.KnowledgeKey(ac.OrgID.String(), id.String(), fileID.String(), ext)

			src, err := fileHeader.Open()
			if err != nil {
				return apperr.Validation("unreadable upload")
			}
			defer src.Close()
			if err := h.s3.UploadKnowledge(ctx, key, contentType, src); err != nil {
				return apperr.External("upload knowledge file", err)
			}

			file = &models.AgentKnowledgeFile{
				ID:          fileID,
				AgentID:     id,
				FileName:    fileHeader.Filename,
				ContentType: contentType,
				S3Key:       key,
				SizeBytes:   fileHeader.Size,
			}
			if err := h.repo.AddKnowledgeFile(ctx, file); err != nil {
				// Object uploaded but row insert failed; drop the object.
				if derr := h.s3.Delete(ctx, key); derr != nil {
					h.logger.Warn("orphaned knowledge object", zap.String("key", key), zap.Error(derr))
				}
				return apperr.External("record knowledge file", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.AgentWrite(ac.OrgID, id) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// DownloadKnowledge handles GET /orgs/:slug/agents/:id/knowledge/:fileID:
// returns a time-limited presigned URL.
func (h *Handler) DownloadKnowledge(c *gin.Context) {
	ac := middleware.OrgContext(c)
	agentID, err1 := uuid.Parse(c.Param("id"))
	fileID, err2 := uuid.Parse(c.Param("fileID"))
	if err1 != nil || err2 != nil {
		response.Error(c, apperr.Validation("invalid id"))
		return
	}
	file, err := h.repo.GetKnowledgeFile(c.Request.Context(), ac.OrgID, agentID, fileID)
	if err != nil {
		response.Error(c, apperr.External("get knowledge file", err))
		return
	}
	if file == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	url, err := h.s3.PresignDownload(c.Request.Context(), file.S3Key)
	if err != nil {
		response.Error(c, apperr.External("presign download", err))
		return
	}
	response.OK(c, gin.H{"url": url, "file": file})
}

// DeleteKnowledge handles DELETE /orgs/:slug/agents/:id/knowledge/:fileID.
func (h *Handler) DeleteKnowledge(c *gin.Context) {
	agentID, err1 := uuid.Parse(c.Param("id"))
	fileID, err2 := uuid.Parse(c.Param("fileID"))

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceAgent,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if err1 != nil || err2 != nil {
				return apperr.Validation("invalid id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			file, err := h.repo.GetKnowledgeFile(ctx, ac.OrgID, agentID, fileID)
			if err != nil {
				return apperr.External("get knowledge file", err)
			}
			if file == nil {
				return apperr.ErrNotFound
			}
			if err := h.repo.DeleteKnowledgeFile(ctx, fileID); err != nil {
				return apperr.External("delete knowledge file", err)
			}
			if err := h.s3.Delete(ctx, file.S3Key); err != nil {
				h.logger.Warn("orphaned knowledge object", zap.String("key", file.S3Key), zap.Error(err))
			}
			return nil
		},
		Tags: func(ac authz.Context) []string { return tags.AgentWrite(ac.OrgID, agentID) },
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
