package inbox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/realtime"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/pkg/apperr"
	"github.com/kronos-crm/backend/pkg/response"
)

// WebhookSignatureHeader carries the channel provider's HMAC over the raw
// body.
const WebhookSignatureHeader = "X-Channel-Signature"

// inboundEvent is the provider's inbound-message payload.
type inboundEvent struct {
	InboxID    uuid.UUID `json:"inbox_id"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ExternalID string    `json:"external_id"`
}

// Webhook handles POST /webhooks/whatsapp.
func (h *Handler) Webhook(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			response.Error(c, apperr.Validation("unreadable body"))
			return
		}
		if !verifySignature(secret, body, c.GetHeader(WebhookSignatureHeader)) {
			response.Error(c, apperr.ErrAuthenticationRequired)
			return
		}

		var evt inboundEvent
		if err := json.Unmarshal(body, &evt); err != nil || evt.InboxID == uuid.Nil {
			response.Error(c, apperr.Validation("inbox_id, from, and body required"))
			return
		}
		evt.From = strings.TrimSpace(evt.From)
		evt.Body = strings.TrimSpace(evt.Body)
		if evt.From == "" || evt.Body == "" {
			response.Error(c, apperr.Validation("inbox_id, from, and body required"))
			return
		}

		ctx := c.Request.Context()
		in, err := h.repo.GetByID(ctx, evt.InboxID)
		if err != nil {
			response.Error(c, apperr.External("inbox lookup", err))
			return
		}
		if in == nil {
			response.Error(c, apperr.ErrNotFound)
			return
		}

		cv, created, err := h.repo.GetOrCreateConversation(ctx, in.OrganizationID, in.ID, evt.From)
		if err != nil {
			response.Error(c, apperr.External("resolve conversation", err))
			return
		}
		msg := &models.Message{
			OrganizationID: in.OrganizationID,
			ConversationID: cv.ID,
			Direction:      models.MessageDirectionIn,
			Body:           evt.Body,
			Status:         models.MessageStatusSent,
			ExternalID:     evt.ExternalID,
		}
		if err := h.repo.CreateMessage(ctx, msg); err != nil {
			response.Error(c, apperr.External("record inbound message", err))
			return
		}

		// The write is durable; stale cached views age out via TTL if this
		// fails.
		if err := h.cache.Invalidate(ctx, tags.InboxWrite(in.OrganizationID, in.ID)...); err != nil {
			h.logger.Warn("inbox tag invalidation failed",
				zap.String("inbox_id", in.ID.String()), zap.Error(err))
		}

		if created {
			h.hub.Broadcast(in.OrganizationID, realtime.EventConversationCreated, cv)
		}
		h.hub.Broadcast(in.OrganizationID, realtime.EventMessageCreated, msg)
		response.OK(c, gin.H{"message_id": msg.ID})
	}
}

func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
