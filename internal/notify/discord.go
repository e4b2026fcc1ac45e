package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DiscordSender delivers alerts to a Discord channel through a webhook.
type DiscordSender struct {
	webhookURL string
	client     *resty.Client
}

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &DiscordSender{webhookURL: webhookURL, client: client}
}

// Send posts one message, title bolded above the body. Discord answers a
// successful webhook post with 204 No Content.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"content": fmt.Sprintf("**%s**\n%s", title, message),
		}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: discord status %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
