// Package notification sends templated threat notifications across
// configured channels, with suppression, delayed escalation chains and
// delivery bookkeeping.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/nocturnelabs/vigil/pkg/eventbus"
	"github.com/nocturnelabs/vigil/pkg/events"
	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/template"
)

// Template ids selected by severity.
const (
	CriticalAlertTemplateID = "critical_alert"
	InfoUpdateTemplateID    = "informational_update"
)

var (
	// ErrTemplateNotFound indicates the severity-selected template id is
	// not registered.
	ErrTemplateNotFound = errors.New("notification template not found")

	// ErrAlreadyAcknowledged indicates a second acknowledgment attempt on
	// the same notification.
	ErrAlreadyAcknowledged = errors.New("notification already acknowledged")
)

// Engine is the notification and escalation engine.
type Engine struct {
	logger     *slog.Logger
	store      persistence.NotificationRepository
	publisher  eventbus.EventPublisher
	dispatcher *Dispatcher
	escalation *Scheduler
	clock      clockwork.Clock
	validate   *validator.Validate
	stats      statsTracker

	mu           sync.RWMutex
	channels     map[string]*models.NotificationChannel
	templates    map[string]*models.NotificationTemplate
	policies     map[string]*models.EscalationPolicy
	suppressions *SuppressionStore
}

// NewEngine creates a notification engine with in-memory rate limiting and
// the default transport set. The publisher may be nil.
func NewEngine(logger *slog.Logger, store persistence.NotificationRepository, publisher eventbus.EventPublisher) *Engine {
	clock := clockwork.NewRealClock()

	engine := &Engine{
		logger:       logger.With("module", "notification_engine"),
		store:        store,
		publisher:    publisher,
		clock:        clock,
		validate:     validator.New(),
		channels:     make(map[string]*models.NotificationChannel),
		templates:    make(map[string]*models.NotificationTemplate),
		policies:     make(map[string]*models.EscalationPolicy),
		suppressions: NewSuppressionStore(),
	}

	engine.dispatcher = NewDispatcher(logger, NewTransports(logger), NewMemoryRateLimiter(clock), clock)
	engine.escalation = NewScheduler(logger, clock, engine.fireEscalation)

	return engine
}

// WithClock replaces the clock on the engine, its dispatcher and its
// escalation scheduler. Used by tests.
func (e *Engine) WithClock(clock clockwork.Clock) *Engine {
	e.clock = clock
	e.dispatcher.clock = clock
	e.escalation.clock = clock

	return e
}

// WithRateLimiter swaps the dispatcher's rate limiter, e.g. for the Redis
// limiter in multi-process deployments.
func (e *Engine) WithRateLimiter(limiter RateLimiter) *Engine {
	e.dispatcher.limiter = limiter

	return e
}

// WithTransports replaces the transport set. Used by tests and for custom
// channel integrations.
func (e *Engine) WithTransports(transports map[models.ChannelType]Transport) *Engine {
	e.dispatcher.transports = transports

	return e
}

// RegisterChannel adds or replaces a delivery channel.
func (e *Engine) RegisterChannel(channel *models.NotificationChannel) error {
	if err := e.validate.Struct(channel); err != nil {
		return fmt.Errorf("invalid channel: %w", err)
	}

	if _, err := models.ParseChannelType(string(channel.Type)); err != nil {
		return fmt.Errorf("channel %q: %w", channel.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.channels[channel.ID] = channel

	return nil
}

// RegisterTemplate adds or replaces a notification template. Every message
// body is checked against the template's declared variables at registration
// time.
func (e *Engine) RegisterTemplate(tmpl *models.NotificationTemplate) error {
	if err := e.validate.Struct(tmpl); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	for channelType, message := range tmpl.Channels {
		if err := template.Validate(message, tmpl.Variables); err != nil {
			return fmt.Errorf("template %q channel %q: %w", tmpl.ID, channelType, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[tmpl.ID] = tmpl

	return nil
}

// RegisterPolicy adds or replaces an escalation policy.
func (e *Engine) RegisterPolicy(policy *models.EscalationPolicy) error {
	if err := e.validate.Struct(policy); err != nil {
		return fmt.Errorf("invalid escalation policy: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies[policy.ID] = policy

	return nil
}

// Channels returns all registered channels with derived health snapshots.
func (e *Engine) Channels() []*models.NotificationChannel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.NotificationChannel, 0, len(e.channels))

	for _, channel := range e.channels {
		copied := *channel
		copied.Health = e.dispatcher.Health(channel.ID)
		out = append(out, &copied)
	}

	return out
}

// CreateSuppression registers an alert suppression and returns its id.
func (e *Engine) CreateSuppression(rule *models.AlertSuppression) (string, error) {
	return e.suppressions.Create(rule)
}

// Suppressions lists the stored suppressions.
func (e *Engine) Suppressions() []*models.AlertSuppression {
	return e.suppressions.List()
}

// DeleteSuppression removes a suppression by id.
func (e *Engine) DeleteSuppression(id string) {
	e.suppressions.Delete(id)
}

// Stats returns a snapshot of the engine-wide counters.
func (e *Engine) Stats() models.NotificationStats {
	return e.stats.snapshot()
}

// SendThreatNotification delivers a threat notification to every declared
// recipient and channel. The caller always receives a structured result,
// including for suppressed and fully failed sends; a hard error only means
// the request itself was invalid.
func (e *Engine) SendThreatNotification(ctx context.Context, data *models.ThreatNotificationData) (*models.NotificationResult, error) {
	return e.send(ctx, data, false)
}

func (e *Engine) send(ctx context.Context, data *models.ThreatNotificationData, escalated bool) (*models.NotificationResult, error) {
	if err := e.validate.Struct(data); err != nil {
		return nil, fmt.Errorf("invalid notification data: %w", err)
	}

	contextData := buildContext(data)
	now := e.clock.Now().UTC()

	if id, matched := e.suppressions.Match(contextData, now); matched {
		e.logger.InfoContext(ctx, "Notification suppressed",
			"suppression_id", id, "alert_type", data.AlertType, "severity", data.Severity)

		e.stats.recordSend(models.NotificationSuppressed, now)

		e.publish(ctx, id, events.NotificationSuppressed{
			BaseEvent:     events.NewBaseEvent(events.NotificationSuppressedEvent),
			SuppressionID: id,
			Severity:      data.Severity,
			AlertType:     data.AlertType,
		})

		return &models.NotificationResult{
			Status:       models.NotificationSuppressed,
			SuppressedBy: id,
			SentAt:       now,
		}, nil
	}

	tmpl, err := e.templateFor(data.Severity)
	if err != nil {
		return nil, err
	}

	notificationID := uuid.New().String()
	logger := e.logger.With("notification_id", notificationID, "template_id", tmpl.ID)

	attempts := e.deliver(ctx, logger, tmpl, data, contextData)

	result := &models.NotificationResult{
		NotificationID: notificationID,
		Status:         aggregateStatus(attempts),
		Attempts:       attempts,
		SentAt:         now,
	}

	record := &models.SentNotification{
		ID:          notificationID,
		TemplateID:  tmpl.ID,
		IndicatorID: data.Indicator.ID,
		Severity:    data.Severity,
		Recipients:  data.Recipients,
		ChannelIDs:  collectChannelIDs(data.Recipients),
		SentAt:      now,
		Context:     contextData,
		Attempts:    attempts,
	}

	if !escalated {
		if policy := e.matchPolicy(contextData); policy != nil {
			result.EscalationTriggered = true
			result.EscalationPolicyID = policy.ID

			e.stats.recordEscalation()
			e.escalation.Start(notificationID, policy, contextData)

			logger.InfoContext(ctx, "Escalation policy matched", "policy_id", policy.ID)
		}
	}

	e.stats.recordSend(result.Status, now)

	if e.store != nil {
		if err := e.store.SaveNotification(ctx, record); err != nil {
			logger.ErrorContext(ctx, "Failed to persist notification", "error", err)
		}
	}

	e.publish(ctx, notificationID, events.NotificationSent{
		BaseEvent:      events.NewBaseEvent(events.NotificationSentEvent),
		NotificationID: notificationID,
		Severity:       data.Severity,
		Status:         result.Status,
		Recipients:     len(data.Recipients),
	})

	logger.InfoContext(ctx, "Notification sent",
		"status", result.Status,
		"attempts", len(attempts),
		"escalation_triggered", result.EscalationTriggered)

	return result, nil
}

// deliver fans the rendered message out to every recipient/channel pair.
func (e *Engine) deliver(
	ctx context.Context,
	logger *slog.Logger,
	tmpl *models.NotificationTemplate,
	data *models.ThreatNotificationData,
	contextData map[string]any,
) []*models.DeliveryAttempt {
	var attempts []*models.DeliveryAttempt

	for _, recipient := range data.Recipients {
		for _, channelID := range recipient.ChannelIDs {
			channel := e.channel(channelID)
			if channel == nil {
				now := e.clock.Now().UTC()
				attempts = append(attempts, &models.DeliveryAttempt{
					ID:          uuid.New().String(),
					ChannelID:   channelID,
					Recipient:   recipient.Name,
					Status:      models.DeliveryFailed,
					AttemptedAt: now,
					CompletedAt: &now,
					Error:       "unknown channel",
				})

				continue
			}

			message, err := renderMessage(tmpl, channel.Type, data.Severity, contextData)
			if err != nil {
				now := e.clock.Now().UTC()
				attempts = append(attempts, &models.DeliveryAttempt{
					ID:          uuid.New().String(),
					ChannelID:   channelID,
					ChannelType: channel.Type,
					Recipient:   recipient.Name,
					Status:      models.DeliveryFailed,
					AttemptedAt: now,
					CompletedAt: &now,
					Error:       err.Error(),
				})

				logger.WarnContext(ctx, "Message rendering failed",
					"channel_id", channelID, "error", err)

				continue
			}

			attempts = append(attempts, e.dispatcher.Deliver(ctx, channel, recipient, message))
		}
	}

	return attempts
}

// Acknowledge sets the once-only acknowledgment on a sent notification and
// stops its escalation chain. A repeat call is rejected without touching the
// original acknowledgment.
func (e *Engine) Acknowledge(ctx context.Context, id, actor string) error {
	if e.store == nil {
		return persistence.ErrNotificationNotFound
	}

	record, err := e.store.NotificationByID(ctx, id)
	if err != nil {
		return err
	}

	if record.Ack.Acknowledged {
		return fmt.Errorf("notification %q: %w", id, ErrAlreadyAcknowledged)
	}

	now := e.clock.Now().UTC()
	record.Ack = models.Acknowledgment{
		Acknowledged: true,
		At:           &now,
		By:           actor,
	}

	if err := e.store.SaveNotification(ctx, record); err != nil {
		return fmt.Errorf("persist acknowledgment: %w", err)
	}

	e.escalation.Cancel(id)

	e.logger.InfoContext(ctx, "Notification acknowledged", "notification_id", id, "actor", actor)

	return nil
}

// SendFromAutomation adapts an automation rule's notification action into a
// threat notification send. Parameters carry the recipient and severity
// configuration; the event payload supplies the indicator.
func (e *Engine) SendFromAutomation(ctx context.Context, params map[string]any, payload map[string]any) (string, error) {
	var data models.ThreatNotificationData

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal notification parameters: %w", err)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decode notification parameters: %w", err)
	}

	if data.Indicator.Value == "" {
		if ioc, ok := payload["ioc"].(map[string]any); ok {
			data.Indicator.Value, _ = ioc["value"].(string)
			data.Indicator.Type, _ = ioc["type"].(string)

			if confidence, ok := ioc["confidence"].(float64); ok {
				data.Indicator.Confidence = confidence
			}
		}
	}

	if data.DetectedAt.IsZero() {
		data.DetectedAt = e.clock.Now().UTC()
	}

	result, err := e.send(ctx, &data, false)
	if err != nil {
		return "", err
	}

	return result.NotificationID, nil
}

// StartMaintenance registers the engine's periodic sweeps on the given cron
// runner: expired suppressions are dropped every minute.
func (e *Engine) StartMaintenance(runner *cron.Cron) error {
	_, err := runner.AddFunc("@every 1m", func() {
		if removed := e.suppressions.Sweep(e.clock.Now().UTC()); removed > 0 {
			e.logger.Info("Swept expired suppressions", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("register suppression sweep: %w", err)
	}

	return nil
}

// fireEscalation delivers one escalation level to its recipients. The alert
// type is prefixed with the level so operators can tell re-pages apart.
func (e *Engine) fireEscalation(ctx context.Context, notificationID string, policy *models.EscalationPolicy, level models.EscalationLevel) {
	e.publish(ctx, notificationID, events.EscalationTriggered{
		BaseEvent:      events.NewBaseEvent(events.EscalationTriggeredEvent),
		NotificationID: notificationID,
		PolicyID:       policy.ID,
		Level:          level.Level,
	})

	record, severity, alertType := e.escalationSource(ctx, notificationID)

	data := &models.ThreatNotificationData{
		Severity:   severity,
		DetectedAt: e.clock.Now().UTC(),
		AlertType:  fmt.Sprintf("ESCALATION L%d: %s", level.Level, alertType),
		Recipients: level.Recipients,
	}

	if record != nil {
		data.Indicator = models.Indicator{
			ID:    record.IndicatorID,
			Type:  stringFromContext(record.Context, "ioc.type"),
			Value: stringFromContext(record.Context, "ioc.value"),
		}
		data.IncidentID = stringFromContext(record.Context, "incident_id")
	}

	if data.Indicator.Value == "" {
		data.Indicator = models.Indicator{Type: "unknown", Value: "unknown"}
	}

	result, err := e.send(ctx, data, true)
	if err != nil {
		e.logger.ErrorContext(ctx, "Escalation delivery failed",
			"notification_id", notificationID, "level", level.Level, "error", err)

		return
	}

	if record != nil && e.store != nil {
		record.EscalationLevel = level.Level
		if err := e.store.SaveNotification(ctx, record); err != nil {
			e.logger.ErrorContext(ctx, "Failed to record escalation level", "error", err)
		}
	}

	e.logger.InfoContext(ctx, "Escalation level delivered",
		"notification_id", notificationID,
		"level", level.Level,
		"status", result.Status)
}

// escalationSource loads the original notification to seed the escalation
// send. A missing record degrades to severity/alert-type defaults.
func (e *Engine) escalationSource(ctx context.Context, notificationID string) (*models.SentNotification, models.Severity, string) {
	if e.store == nil {
		return nil, models.SeverityCritical, "escalation"
	}

	record, err := e.store.NotificationByID(ctx, notificationID)
	if err != nil {
		e.logger.WarnContext(ctx, "Escalation source notification missing",
			"notification_id", notificationID, "error", err)

		return nil, models.SeverityCritical, "escalation"
	}

	alertType := stringFromContext(record.Context, "alert_type")
	if alertType == "" {
		alertType = "escalation"
	}

	return record, record.Severity, alertType
}

func (e *Engine) channel(id string) *models.NotificationChannel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.channels[id]
}

// templateFor maps severity to the registered template: critical and high
// page through the critical-alert template, everything else informs.
func (e *Engine) templateFor(severity models.Severity) (*models.NotificationTemplate, error) {
	id := InfoUpdateTemplateID
	if severity == models.SeverityCritical || severity == models.SeverityHigh {
		id = CriticalAlertTemplateID
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %q for severity %q: %w", id, severity, ErrTemplateNotFound)
	}

	return tmpl, nil
}

// matchPolicy returns the first enabled policy whose trigger conditions all
// hold against the notification context.
func (e *Engine) matchPolicy(contextData map[string]any) *models.EscalationPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, policy := range e.policies {
		if !policy.Enabled {
			continue
		}

		if ok, err := models.AllMatch(policy.Triggers, contextData); err == nil && ok {
			return policy
		}
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

// buildContext flattens the notification data into the variable map used by
// suppression matching, escalation triggers and template rendering.
// Confidence is exposed as a 0-100 integer.
func buildContext(data *models.ThreatNotificationData) map[string]any {
	contextData := map[string]any{
		"ioc": map[string]any{
			"type":       data.Indicator.Type,
			"value":      data.Indicator.Value,
			"source":     data.Indicator.Source,
			"confidence": int(data.Indicator.Confidence * 100),
		},
		"indicator_type":  data.Indicator.Type,
		"indicator_value": data.Indicator.Value,
		"confidence":      data.Indicator.Confidence,
		"severity":        string(data.Severity),
		"alert_type":      data.AlertType,
		"detected_at":     data.DetectedAt.Format("2006-01-02 15:04:05 UTC"),
	}

	if data.IncidentID != "" {
		contextData["incident_id"] = data.IncidentID
	}

	if data.BusinessImpact != "" {
		contextData["business_impact"] = data.BusinessImpact
	}

	if len(data.Recommendations) > 0 {
		contextData["recommendations"] = strings.Join(data.Recommendations, "; ")
	}

	return contextData
}

// renderMessage renders the channel-type-specific message for the context.
func renderMessage(tmpl *models.NotificationTemplate, channelType models.ChannelType, severity models.Severity, contextData map[string]any) (Message, error) {
	messageTmpl, ok := tmpl.Channels[channelType]
	if !ok {
		return Message{}, fmt.Errorf("template %q has no message for channel type %q", tmpl.ID, channelType)
	}

	body, err := template.Render(messageTmpl.Body, contextData)
	if err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}

	subject := messageTmpl.Subject
	if subject != "" {
		subject, err = template.Render(subject, contextData)
		if err != nil {
			return Message{}, fmt.Errorf("render subject: %w", err)
		}
	}

	return Message{Subject: subject, Body: body, Severity: severity}, nil
}

// aggregateStatus folds per-attempt outcomes into the overall status.
func aggregateStatus(attempts []*models.DeliveryAttempt) models.NotificationStatus {
	delivered := 0
	for _, attempt := range attempts {
		if attempt.Status == models.DeliveryDelivered {
			delivered++
		}
	}

	switch {
	case len(attempts) == 0 || delivered == 0:
		return models.NotificationFailed
	case delivered == len(attempts):
		return models.NotificationDelivered
	default:
		return models.NotificationPartiallyDelivered
	}
}

func collectChannelIDs(recipients []models.Recipient) []string {
	seen := make(map[string]struct{})

	var ids []string

	for _, recipient := range recipients {
		for _, id := range recipient.ChannelIDs {
			if _, ok := seen[id]; ok {
				continue
			}

			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids
}

func stringFromContext(contextData map[string]any, path string) string {
	value, found := models.LookupPath(contextData, path)
	if !found {
		return ""
	}

	s, _ := value.(string)

	return s
}
