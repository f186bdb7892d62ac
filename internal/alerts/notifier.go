package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"

	"github.com/voicelayer/switchboard/internal/types"
)

// Notifier posts alerts to a Slack incoming webhook. With no webhook
// URL configured it is a no-op, so callers never need to check.
type Notifier struct {
	webhookURL string
	poster     func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
	logger     zerolog.Logger
}

func NewNotifier(webhookURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		poster:     slackapi.PostWebhookContext,
		logger:     logger.With().Str("component", "slack").Logger(),
	}
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

// NotifyEnvelope posts one alert envelope to the webhook
func (n *Notifier) NotifyEnvelope(ctx context.Context, env types.Envelope) {
	if !n.Enabled() {
		return
	}

	msg := &slackapi.WebhookMessage{
		Attachments: []slackapi.Attachment{buildAttachment(env)},
	}
	if err := n.poster(ctx, n.webhookURL, msg); err != nil {
		n.logger.Error().Err(err).Str("event", env.Event).Msg("Failed to post alert to Slack")
		return
	}
	n.logger.Debug().Str("event", env.Event).Msg("Alert posted to Slack")
}

func buildAttachment(env types.Envelope) slackapi.Attachment {
	if alert, ok := env.Payload.(Alert); ok {
		return slackapi.Attachment{
			Title:    fmt.Sprintf("Queue alert: %s", alert.Rule),
			Text:     alert.Message,
			Color:    colorFor(alert.Severity),
			Fallback: alert.Message,
			Fields: []slackapi.AttachmentField{
				{Title: "Team", Value: alert.TeamID, Short: true},
				{Title: "Severity", Value: string(alert.Severity), Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.0f", alert.Value), Short: true},
				{Title: "Threshold", Value: fmt.Sprintf("%.0f", alert.Threshold), Short: true},
			},
		}
	}

	body, err := json.Marshal(env.Payload)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", env.Payload))
	}
	return slackapi.Attachment{
		Title:    fmt.Sprintf("Alert: %s", env.Event),
		Text:     string(body),
		Color:    colorFor(SeverityCritical),
		Fallback: env.Event,
	}
}

func colorFor(severity Severity) string {
	if severity == SeverityCritical {
		return "danger"
	}
	return "warning"
}

// Relay decorates a hub so every alert envelope also reaches Slack.
// Dashboards keep getting everything; only the alerts topic fans out.
type Relay struct {
	next     Publisher
	notifier *Notifier
}

func NewRelay(next Publisher, notifier *Notifier) *Relay {
	return &Relay{next: next, notifier: notifier}
}

func (r *Relay) Publish(env types.Envelope) {
	r.next.Publish(env)
	if env.Type == types.TopicAlerts && r.notifier.Enabled() {
		go r.notifier.NotifyEnvelope(context.Background(), env)
	}
}
