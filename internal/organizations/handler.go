package organizations

import (
	"context"
	"regexp"
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
	"github.com/kronos-crm/backend/pkg/queue"
	"github.com/kronos-crm/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles organization and membership HTTP endpoints.
type Handler struct {
	repo     *Repository
	pipeline *action.Pipeline
	cache    *cache.TagCache
	jobs     *queue.Queue
	logger   *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, pipeline *action.Pipeline, tc *cache.TagCache, jobs *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, cache: tc, jobs: jobs, logger: logger}
}

// CreateRequest is the body for POST /orgs.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

// UpdateRequest is the body for PATCH /orgs/:slug.
type UpdateRequest struct {
	Name string `json:"name" binding:"required"`
}

// InviteRequest is the body for POST /orgs/:slug/invites.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// AcceptInviteRequest is the body for POST /invites/accept.
type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

// Create handles POST /orgs. Not org-scoped: any authenticated user may
// create an organization and becomes its owner.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	bindErr := c.ShouldBindJSON(&req)
	userID := middleware.CurrentUserID(c)

	var org *models.Organization
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   userID,
		Resource: authz.ResourceOrganization,
		Action:   authz.ActionCreate,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("name and slug required")
			}
			req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
			if !slugRegex.MatchString(req.Slug) {
				return apperr.Validation("slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
			}
			req.Name = strings.TrimSpace(req.Name)
			if len(req.Name) < 1 || len(req.Name) > 255 {
				return apperr.Validation("name must be 1-255 characters")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			org = &models.Organization{Name: req.Name, Slug: req.Slug}
			if err := h.repo.CreateWithOwner(ctx, org, ac.UserID); err != nil {
				if isUniqueViolation(err) {
					return apperr.Validation("an organization with this slug already exists")
				}
				return apperr.External("create organization", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			return tags.UserOrgsRead(ac.UserID)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// ListMine handles GET /orgs: organizations the caller belongs to.
func (h *Handler) ListMine(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == uuid.Nil {
		response.Error(c, apperr.ErrAuthenticationRequired)
		return
	}
	orgs, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindUserOrgs.For(userID), tags.UserOrgsRead(userID),
		func(ctx context.Context) ([]models.Organization, error) {
			return h.repo.ListForUser(ctx, userID)
		})
	if err != nil {
		response.Error(c, apperr.External("list organizations", err))
		return
	}
	response.OK(c, orgs)
}

// Get handles GET /orgs/:slug. Requires org membership (middleware).
func (h *Handler) Get(c *gin.Context) {
	ac := middleware.OrgContext(c)
	org, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindOrganization.For(ac.OrgID), tags.OrganizationRead(ac.OrgID),
		func(ctx context.Context) (*models.Organization, error) {
			return h.repo.GetByID(ctx, ac.OrgID)
		})
	if err != nil || org == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, org)
}

// Update handles PATCH /orgs/:slug (rename only; slug is immutable).
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	bindErr := c.ShouldBindJSON(&req)

	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceOrganization,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("name required")
			}
			req.Name = strings.TrimSpace(req.Name)
			if len(req.Name) < 1 || len(req.Name) > 255 {
				return apperr.Validation("name must be 1-255 characters")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.repo.UpdateName(ctx, ac.OrgID, req.Name); err != nil {
				return apperr.External("update organization", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			// Renames show up in each member's org list too; the
			// actor's is refreshed here, the rest age out via TTL.
			return append(tags.OrganizationWrite(ac.OrgID), tags.UserOrgsRead(ac.UserID)...)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": true})
}

// Delete handles DELETE /orgs/:slug. Admin/owner only (sensitive delete).
func (h *Handler) Delete(c *gin.Context) {
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceOrganization,
		Action:   authz.ActionDelete,
		Mutate: func(ctx context.Context, ac authz.Context) error {
			if err := h.repo.Delete(ctx, ac.OrgID); err != nil {
				return apperr.External("delete organization", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			return append(tags.OrganizationWrite(ac.OrgID),
				append(tags.OrgMembersRead(ac.OrgID), tags.UserOrgsRead(ac.UserID)...)...)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMembers handles GET /orgs/:slug/members.
func (h *Handler) ListMembers(c *gin.Context) {
	ac := middleware.OrgContext(c)
	members, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindOrgMembers.For(ac.OrgID), tags.OrgMembersRead(ac.OrgID),
		func(ctx context.Context) ([]MemberInfo, error) {
			return h.repo.ListMembers(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("list members", err))
		return
	}
	response.OK(c, members)
}

// Invite handles POST /orgs/:slug/invites. Member quota applies: pending
// invites count toward the seat limit.
func (h *Handler) Invite(c *gin.Context) {
	var req InviteRequest
	bindErr := c.ShouldBindJSON(&req)

	var member *models.Member
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:      middleware.CurrentUserID(c),
		OrgSlug:     c.Param("slug"),
		Resource:    authz.ResourceMember,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityMember,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("valid email required")
			}
			if req.Role == "" {
				req.Role = string(authz.RoleMember)
			}
			if req.Role != string(authz.RoleMember) && req.Role != string(authz.RoleAdmin) {
				return apperr.Validation("role must be member or admin")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			m, err := h.repo.InviteMember(ctx, ac.OrgID, strings.ToLower(strings.TrimSpace(req.Email)), authz.Role(req.Role))
			if err != nil {
				return apperr.External("create invite", err)
			}
			member = m
			token, err := h.repo.InviteToken(ctx, m.ID)
			if err != nil {
				return apperr.External("load invite token", err)
			}
			if err := h.jobs.EnqueueEmail(ctx, queue.EmailPayload{
				EmailType:      "member_invite",
				OrganizationID: ac.OrgID,
				RecipientEmail: m.InvitedEmail,
				Subject:        "You have been invited",
				BodyHTML:       inviteEmailBody(token),
			}); err != nil {
				return apperr.External("enqueue invite email", err)
			}
			return nil
		},
		Tags: func(ac authz.Context) []string {
			return tags.OrgMembersRead(ac.OrgID)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// AcceptInvite handles POST /invites/accept. Not org-scoped: the token is
// the authorization to join.
func (h *Handler) AcceptInvite(c *gin.Context) {
	var req AcceptInviteRequest
	bindErr := c.ShouldBindJSON(&req)

	var member *models.Member
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		Resource: authz.ResourceMember,
		Action:   authz.ActionUpdate,
		Validate: func() error {
			if bindErr != nil {
				return apperr.Validation("token required")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			m, err := h.repo.AcceptInvite(ctx, req.Token, ac.UserID)
			if err != nil {
				if isUniqueViolation(err) {
					return apperr.Validation("you are already a member of this organization")
				}
				return apperr.External("accept invite", err)
			}
			if m == nil {
				return apperr.ErrNotFound
			}
			member = m
			return nil
		},
		Tags: func(ac authz.Context) []string {
			if member == nil {
				return nil
			}
			return tags.MembershipWrite(member.OrganizationID, ac.UserID)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

// RemoveMember handles DELETE /orgs/:slug/members/:memberID.
func (h *Handler) RemoveMember(c *gin.Context) {
	memberID, parseErr := uuid.Parse(c.Param("memberID"))

	var removedUser *uuid.UUID
	err := h.pipeline.Run(c.Request.Context(), action.Request{
		UserID:   middleware.CurrentUserID(c),
		OrgSlug:  c.Param("slug"),
		Resource: authz.ResourceMember,
		Action:   authz.ActionDelete,
		Validate: func() error {
			if parseErr != nil {
				return apperr.Validation("invalid member id")
			}
			return nil
		},
		Mutate: func(ctx context.Context, ac authz.Context) error {
			userID, found, err := h.repo.RemoveMember(ctx, ac.OrgID, memberID)
			if err != nil {
				return apperr.External("remove member", err)
			}
			if !found {
				return apperr.ErrNotFound
			}
			removedUser = userID
			return nil
		},
		Tags: func(ac authz.Context) []string {
			if removedUser != nil {
				return tags.MembershipWrite(ac.OrgID, *removedUser)
			}
			return tags.OrgMembersRead(ac.OrgID)
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func inviteEmailBody(token string) string {
	return "<p>You have been invited to join an organization. Use this code to accept: <b>" + token + "</b></p>"
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key")
}
