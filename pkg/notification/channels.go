package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// Message is a rendered notification ready for transport.
type Message struct {
	Subject  string
	Body     string
	Severity models.Severity
}

// Transport delivers a rendered message to one recipient over one channel.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error
}

// NewTransports builds the default transport set, one per channel type.
func NewTransports(logger *slog.Logger) map[models.ChannelType]Transport {
	client := &http.Client{Timeout: 15 * time.Second}

	return map[models.ChannelType]Transport{
		models.ChannelWebhook:   &WebhookTransport{client: client},
		models.ChannelSlack:     &SlackTransport{},
		models.ChannelEmail:     &EmailTransport{},
		models.ChannelSMS:       &SMSTransport{client: client},
		models.ChannelPagerDuty: &PagerDutyTransport{client: client},
	}
}

// WebhookTransport posts the message as JSON to the channel's url setting.
type WebhookTransport struct {
	client *http.Client
}

func (t *WebhookTransport) Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error {
	url := channel.Settings["url"]
	if url == "" {
		return fmt.Errorf("webhook channel %q has no url setting", channel.ID)
	}

	body, err := json.Marshal(map[string]any{
		"subject":   message.Subject,
		"body":      message.Body,
		"severity":  string(message.Severity),
		"recipient": recipient.Name,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if token := channel.Settings["auth_token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// SlackTransport delivers through a Slack incoming webhook.
type SlackTransport struct{}

func (t *SlackTransport) Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error {
	url := channel.Settings["webhook_url"]
	if url == "" {
		return fmt.Errorf("slack channel %q has no webhook_url setting", channel.ID)
	}

	text := message.Body
	if message.Subject != "" {
		text = "*" + message.Subject + "*\n" + message.Body
	}

	msg := &slack.WebhookMessage{
		Username: channel.Settings["username"],
		Channel:  channel.Settings["channel"],
		Text:     text,
	}

	if err := slack.PostWebhookContext(ctx, url, msg); err != nil {
		return fmt.Errorf("slack delivery: %w", err)
	}

	return nil
}

// EmailTransport sends plain-text mail through the SMTP host configured on
// the channel. The recipient's contact is the destination address.
type EmailTransport struct{}

func (t *EmailTransport) Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error {
	host := channel.Settings["smtp_host"]
	if host == "" {
		return fmt.Errorf("email channel %q has no smtp_host setting", channel.ID)
	}

	port := channel.Settings["smtp_port"]
	if port == "" {
		port = "587"
	}

	from := channel.Settings["from"]
	if from == "" {
		return fmt.Errorf("email channel %q has no from setting", channel.ID)
	}

	if recipient.Contact == "" {
		return fmt.Errorf("recipient %q has no contact address", recipient.Name)
	}

	var msg strings.Builder

	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + recipient.Contact + "\r\n")
	msg.WriteString("Subject: " + message.Subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(message.Body)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if user := channel.Settings["smtp_user"]; user != "" {
		auth = smtp.PlainAuth("", user, channel.Settings["smtp_password"], host)
	}

	err := smtp.SendMail(host+":"+port, auth, from, []string{recipient.Contact}, []byte(msg.String()))
	if err != nil {
		return fmt.Errorf("smtp delivery: %w", err)
	}

	return nil
}

// SMSTransport posts to an SMS gateway endpoint.
type SMSTransport struct {
	client *http.Client
}

func (t *SMSTransport) Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error {
	url := channel.Settings["gateway_url"]
	if url == "" {
		return fmt.Errorf("sms channel %q has no gateway_url setting", channel.ID)
	}

	if recipient.Contact == "" {
		return fmt.Errorf("recipient %q has no phone number", recipient.Name)
	}

	body, err := json.Marshal(map[string]string{
		"to":   recipient.Contact,
		"from": channel.Settings["sender_id"],
		"text": message.Subject + " " + message.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if key := channel.Settings["api_key"]; key != "" {
		req.Header.Set("X-Api-Key", key)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms delivery: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	return nil
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyTransport triggers an incident through the Events API v2.
type PagerDutyTransport struct {
	client *http.Client
}

func (t *PagerDutyTransport) Send(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) error {
	routingKey := channel.Settings["routing_key"]
	if routingKey == "" {
		return fmt.Errorf("pagerduty channel %q has no routing_key setting", channel.ID)
	}

	url := channel.Settings["events_url"]
	if url == "" {
		url = pagerDutyEventsURL
	}

	body, err := json.Marshal(map[string]any{
		"routing_key":  routingKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  message.Subject,
			"source":   "vigil",
			"severity": pagerDutySeverity(message.Severity),
			"custom_details": map[string]string{
				"body":      message.Body,
				"recipient": recipient.Name,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal pagerduty payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build pagerduty request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty delivery: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}

	return nil
}

// pagerDutySeverity maps internal severities onto the four PagerDuty accepts.
func pagerDutySeverity(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "critical"
	case models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}
