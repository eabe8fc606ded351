package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicholas-fedor/shoutrrr"
)

// WebhookSender posts messages through a Discord webhook.
//
// The webhook is configured as shoutrrr URL, e.g. discord://token@webhookID.
// Since a webhook is bound to a channel, channel IDs are ignored.
type WebhookSender struct {
	url  string
	send func(url, message string) error
}

// NewWebhookSender returns a new WebhookSender for a shoutrrr URL.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{url: url, send: shoutrrr.Send}
}

func (ws *WebhookSender) PostMessage(ctx context.Context, _ string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ws.send(ws.url, truncate(text, MaxMessageLength)); err != nil {
		return fmt.Errorf("post message to webhook: %w", err)
	}
	slog.Debug("Posted message to Discord webhook", "length", len(text))
	return nil
}
