// Package worker runs the background job loop: member invite emails and
// outbound WhatsApp deliveries. Jobs come off the Redis queue; failures are
// retried with backoff and land in the DLQ after the retry budget.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kronos-crm/backend/internal/inbox"
	"github.com/kronos-crm/backend/internal/models"
	"github.com/kronos-crm/backend/internal/realtime"
	"github.com/kronos-crm/backend/internal/tags"
	"github.com/kronos-crm/backend/internal/whatsapp"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/queue"
)

// Processor executes queued jobs.
type Processor struct {
	queue     *queue.Queue
	inboxRepo *inbox.Repository
	cache     *cache.TagCache
	email     EmailSender
	wa        *whatsapp.Client
	events    realtime.Publisher
	logger    *zap.Logger
}

// NewProcessor creates the job processor. events may be nil; status updates
// then go unannounced until clients refetch.
func NewProcessor(q *queue.Queue, inboxRepo *inbox.Repository, tc *cache.TagCache, email EmailSender, wa *whatsapp.Client, events realtime.Publisher, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, inboxRepo: inboxRepo, cache: tc, email: email, wa: wa, events: events, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		return p.processEmail(job)
	case queue.JobTypeOutboundMessage:
		return p.processOutbound(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processEmail(job *queue.Job) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.email.Send(payload); err != nil {
		return fmt.Errorf("send email to %s: %w", payload.RecipientEmail, err)
	}
	p.logger.Info("email sent",
		zap.String("type", payload.EmailType),
		zap.String("recipient", payload.RecipientEmail))
	return nil
}

func (p *Processor) processOutbound(ctx context.Context, job *queue.Job) error {
	var payload queue.OutboundMessagePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	externalID, err := p.wa.Send(ctx, payload.To, payload.Body)
	if err != nil {
		// Final attempt: mark the message failed so the dashboard stops
		// showing it pending forever.
		if job.Attempt >= queue.MaxRetries-1 {
			p.markStatus(ctx, payload, models.MessageStatusFailed, "")
		}
		return fmt.Errorf("deliver message %s: %w", payload.MessageID, err)
	}

	p.markStatus(ctx, payload, models.MessageStatusSent, externalID)
	p.logger.Info("message delivered",
		zap.String("message_id", payload.MessageID.String()),
		zap.String("external_id", externalID))
	return nil
}

func (p *Processor) markStatus(ctx context.Context, payload queue.OutboundMessagePayload, status, externalID string) {
	if err := p.inboxRepo.SetMessageStatus(ctx, payload.MessageID, status, externalID); err != nil {
		p.logger.Error("status update failed",
			zap.String("message_id", payload.MessageID.String()), zap.Error(err))
		return
	}
	if err := p.cache.Invalidate(ctx, tags.InboxWrite(payload.OrganizationID, payload.InboxID)...); err != nil {
		p.logger.Warn("inbox tag invalidation failed",
			zap.String("inbox_id", payload.InboxID.String()), zap.Error(err))
	}
	if p.events != nil {
		evt, _ := json.Marshal(map[string]string{
			"message_id":      payload.MessageID.String(),
			"conversation_id": payload.ConversationID.String(),
			"status":          status,
		})
		if err := p.events.PublishOrgEvent(payload.OrganizationID, realtime.EventMessageUpdated, evt); err != nil {
			p.logger.Warn("event publish failed", zap.Error(err))
		}
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
