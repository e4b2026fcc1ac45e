package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramSender delivers alerts to a Telegram chat through the Bot API.
type TelegramSender struct {
	chatID string
	client *resty.Client
}

// NewTelegramSender creates a sender for the given bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	client := resty.New().
		SetBaseURL("https://api.telegram.org/bot" + token).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &TelegramSender{chatID: chatID, client: client}
}

// Send posts one message, title bolded above the body. Markdown is kept to
// bold only; trade alerts carry market symbols and signed numbers that must
// not be eaten by the parser.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: telegram status %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
