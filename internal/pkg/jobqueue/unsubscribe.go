package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// WebhookReleaser releases an idle event webhook at the hub.
type WebhookReleaser interface {
	ReleaseIdleWebhook(ctx context.Context, eventTicker string) error
}

// EnqueueUnsubscribe queues an out-of-band unsubscribe for eventTicker.
func (q *Queue) EnqueueUnsubscribe(ctx context.Context, eventTicker string) error {
	if eventTicker == "" {
		return fmt.Errorf("cannot enqueue unsubscribe without event ticker")
	}
	payload := UnsubscribeEventJobPayload{EventTicker: eventTicker}
	job, err := q.EnqueueJob(ctx, JobTypeUnsubscribeEvent, payload.ToMap())
	if err != nil {
		return fmt.Errorf("failed to enqueue unsubscribe for %s: %w", eventTicker, err)
	}
	log.Infof("[JobQueue] Enqueued unsubscribe job %s for event %s", job.ID, eventTicker)
	return nil
}

// UnsubscribeHandler releases the webhook named by the job payload.
func UnsubscribeHandler(releaser WebhookReleaser) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := UnsubscribeEventJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid unsubscribe payload: %w", err)
		}
		if payload.EventTicker == "" {
			return fmt.Errorf("unsubscribe job %s has no event ticker", job.ID)
		}
		return releaser.ReleaseIdleWebhook(ctx, payload.EventTicker)
	}
}
