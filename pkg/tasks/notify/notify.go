// Package notify implements the notification task: workflow steps that page
// or inform people route through the notification engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/notification"
)

// Executor sends one threat notification per invocation through the shared
// notification engine.
type Executor struct {
	engine     *notification.Engine
	severity   models.Severity
	alertType  string
	recipients []models.Recipient
}

func NewExecutor(engine *notification.Engine, config map[string]any) (*Executor, error) {
	if engine == nil {
		return nil, fmt.Errorf("notification engine not configured")
	}

	severity := models.SeverityMedium
	if s, ok := config["severity"].(string); ok && s != "" {
		parsed, err := models.ParseSeverity(s)
		if err != nil {
			return nil, err
		}

		severity = parsed
	}

	alertType, _ := config["alert_type"].(string)
	if alertType == "" {
		alertType = "workflow notification"
	}

	// Recipients may come from the task configuration or, when the workflow
	// declares defaults, from the step input at execution time.
	var recipients []models.Recipient

	if raw, ok := config["recipients"]; ok {
		parsed, err := parseRecipients(raw)
		if err != nil {
			return nil, err
		}

		recipients = parsed
	}

	return &Executor{
		engine:     engine,
		severity:   severity,
		alertType:  alertType,
		recipients: recipients,
	}, nil
}

// Execute builds ThreatNotificationData from the step input and sends it.
// Input fields severity and alert_type override the task configuration.
func (e *Executor) Execute(ctx context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	severity := e.severity
	if s, ok := input["severity"].(string); ok && s != "" {
		if parsed, err := models.ParseSeverity(s); err == nil {
			severity = parsed
		}
	}

	alertType := e.alertType
	if t, ok := input["alert_type"].(string); ok && t != "" {
		alertType = t
	}

	recipients := e.recipients
	if raw, ok := input["recipients"]; ok {
		parsed, err := parseRecipients(raw)
		if err != nil {
			return nil, err
		}

		recipients = parsed
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("notify task has no recipients configured")
	}

	data := &models.ThreatNotificationData{
		Indicator: models.Indicator{
			Type:       stringField(input, "type"),
			Value:      stringField(input, "value"),
			Source:     stringField(input, "source"),
			Confidence: floatField(input, "confidence"),
			Severity:   severity,
		},
		Severity:   severity,
		DetectedAt: time.Now().UTC(),
		AlertType:  alertType,
		Recipients: recipients,
		IncidentID: stringField(input, "incident_id"),
	}

	result, err := e.engine.SendThreatNotification(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}

	logger.Info("Workflow notification dispatched",
		"notification_id", result.NotificationID, "status", result.Status)

	return map[string]any{
		"notification_id":      result.NotificationID,
		"status":               string(result.Status),
		"escalation_triggered": result.EscalationTriggered,
		"attempts":             len(result.Attempts),
	}, nil
}

func parseRecipients(raw any) ([]models.Recipient, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("notify task requires a recipients list")
	}

	recipients := make([]models.Recipient, 0, len(list))

	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("recipient %d is not an object", i)
		}

		recipient := models.Recipient{
			Name:    stringField(entry, "name"),
			Contact: stringField(entry, "contact"),
		}

		if ids, ok := entry["channel_ids"].([]any); ok {
			for _, id := range ids {
				if s, ok := id.(string); ok {
					recipient.ChannelIDs = append(recipient.ChannelIDs, s)
				}
			}
		}

		if recipient.Name == "" || len(recipient.ChannelIDs) == 0 {
			return nil, fmt.Errorf("recipient %d needs a name and at least one channel id", i)
		}

		recipients = append(recipients, recipient)
	}

	return recipients, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)

	return s
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
