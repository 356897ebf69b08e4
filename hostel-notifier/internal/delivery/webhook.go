package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookDeliverer 通过外部 HTTP 网关投递（email 等）
type WebhookDeliverer struct {
	httpClient *resty.Client
	url        string
}

// NewWebhookDeliverer 重试交给 consumer 的 requeue，这里只做短重试
func NewWebhookDeliverer(url, token string) *WebhookDeliverer {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookDeliverer{httpClient: client, url: url}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, n *Notification) error {
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", n.NotificationID).
		SetBody(n).
		Post(d.url)
	if err != nil {
		return fmt.Errorf("webhook delivery %s: %w", n.NotificationID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook delivery %s: status %d", n.NotificationID, resp.StatusCode())
	}
	return nil
}
