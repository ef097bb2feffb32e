package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client, nil)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	payload := EmailPayload{
		EmailType:      "member_invite",
		OrganizationID: uuid.New(),
		RecipientEmail: "new@example.com",
		Subject:        "You're invited",
		BodyHTML:       "<p>join</p>",
	}
	require.NoError(t, q.EnqueueEmail(ctx, payload))

	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueJobs, key)
	assert.Equal(t, JobTypeEmail, job.Type)
	assert.Zero(t, job.Attempt)

	var got EmailPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, payload.RecipientEmail, got.RecipientEmail)
}

func TestRetryIncrementsAttempt(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueOutboundMessage(ctx, OutboundMessagePayload{
		MessageID: uuid.New(),
		To:        "+15550001111",
		Body:      "hello",
	}))

	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Retry(ctx, job))
	retried, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, job.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempt)
}

func TestRetryBudgetMovesToDLQ(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{RecipientEmail: "x@example.com"}))

	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	for i := 0; i < MaxRetries-1; i++ {
		require.NoError(t, q.Retry(ctx, job))
		job, _, err = q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
	}

	// Final retry exceeds the budget; the job lands in the DLQ and the
	// main queue stays empty.
	require.NoError(t, q.Retry(ctx, job))

	dlqLen, err := q.client.LLen(ctx, QueueDLQ).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlqLen)

	mainLen, err := q.client.LLen(ctx, QueueJobs).Result()
	require.NoError(t, err)
	assert.Zero(t, mainLen)
}
