package notify

import (
	"context"
	"estimate-backend/internal/database"
	"estimate-backend/internal/messaging"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier delivers one outbox event to a downstream system.
type Notifier interface {
	Notify(ctx context.Context, event database.OutboundEvent) error
}

type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event database.OutboundEvent) error {
	res, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event-Id", event.Id.String()).
		SetHeader("X-Event-Type", event.Type).
		SetBody([]byte(event.Payload)).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("error sending webhook: %w", err)
	}

	if !res.IsSuccess() {
		return fmt.Errorf("webhook returned status %d: %s", res.StatusCode(), res.String())
	}

	return nil
}

type QueueNotifier struct {
	publisher messaging.Publisher
}

func NewQueueNotifier(publisher messaging.Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func (n *QueueNotifier) Notify(ctx context.Context, event database.OutboundEvent) error {
	if err := n.publisher.PublishEstimateEvent(ctx, []byte(event.Payload)); err != nil {
		return fmt.Errorf("error publishing event: %w", err)
	}
	return nil
}
