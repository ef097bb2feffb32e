package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kronos-crm/backend/internal/middleware"
	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/response"
)

// SignatureHeader carries the billing provider's HMAC over the raw body.
const SignatureHeader = "X-Billing-Signature"

// Handler handles subscription and usage HTTP endpoints plus the billing
// provider webhook.
type Handler struct {
	repo          *Repository
	checker       *quota.Checker
	cache         *cache.TagCache
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a billing handler.
func NewHandler(repo *Repository, checker *quota.Checker, tc *cache.TagCache, webhookSecret string, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, checker: checker, cache: tc, webhookSecret: webhookSecret, logger: logger}
}

// GetSubscription handles GET /orgs/:slug/subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	ac := middleware.OrgContext(c)
	sub, err := cache.GetOrLoad(c.Request.Context(), h.cache,
		tags.KindSubscriptions.For(ac.OrgID), tags.SubscriptionRead(ac.OrgID),
		func(ctx context.Context) (*models.Subscription, error) {
			return h.repo.GetSubscription(ctx, ac.OrgID)
		})
	if err != nil {
		response.Error(c, apperr.External("get subscription", err))
		return
	}
	if sub == nil {
		// Orgs created before billing was wired have no row; report free.
		sub = &models.Subscription{OrganizationID: ac.OrgID, Plan: models.PlanFree}
	}
	response.OK(c, sub)
}

// GetUsage handles GET /orgs/:slug/usage: live counts against plan caps for
// every quota entity. Never cached, so the report is always current.
func (h *Handler) GetUsage(c *gin.Context) {
	ac := middleware.OrgContext(c)
	report, err := h.checker.Report(c.Request.Context(), ac.OrgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// webhookEvent is the billing provider's plan-change payload.
type webhookEvent struct {
	OrganizationID   uuid.UUID  `json:"organization_id"`
	Plan             string     `json:"plan"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

func validPlan(p string) bool {
	switch models.PlanTier(p) {
	case models.PlanFree, models.PlanStarter, models.PlanPro, models.PlanScale:
		return true
	}
	return false
}

// Webhook handles POST /webhooks/billing. The caller is the billing provider,
// not a user, so authentication is the HMAC signature over the raw body.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, apperr.Validation("unreadable body"))
		return
	}
	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		response.Error(c, apperr.ErrAuthenticationRequired)
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil || evt.OrganizationID == uuid.Nil {
		response.Error(c, apperr.Validation("organization_id and plan required"))
		return
	}
	if !validPlan(evt.Plan) {
		response.Error(c, apperr.Validation("unknown plan"))
		return
	}

	sub, err := h.repo.SetPlan(c.Request.Context(), evt.OrganizationID, models.PlanTier(evt.Plan), evt.CurrentPeriodEnd)
	if err != nil {
		response.Error(c, apperr.External("set plan", err))
		return
	}

	// Plan change is durable; stale cached subscription views age out via
	// TTL if this fails.
	if err := h.cache.Invalidate(c.Request.Context(), tags.SubscriptionWrite(evt.OrganizationID)...); err != nil {
		h.logger.Warn("subscription tag invalidation failed",
			zap.String("org_id", evt.OrganizationID.String()), zap.Error(err))
	}
	response.OK(c, sub)
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
