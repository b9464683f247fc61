package notification

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory NotificationRepository for tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*models.SentNotification
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*models.SentNotification)}
}

func (m *memoryStore) SaveNotification(_ context.Context, notification *models.SentNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[notification.ID] = notification

	return nil
}

func (m *memoryStore) NotificationByID(_ context.Context, id string) (*models.SentNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, persistence.ErrNotificationNotFound
	}

	return record, nil
}

func (m *memoryStore) ListNotifications(_ context.Context, limit int) ([]*models.SentNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.SentNotification, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// fakeTransport records sends and fails the first failUntil calls.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []Message
	failUntil int
	calls     int
	err       error
}

func (f *fakeTransport) Send(_ context.Context, _ *models.NotificationChannel, _ models.Recipient, message Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.calls <= f.failUntil {
		return f.err
	}

	f.sent = append(f.sent, message)

	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func emailChannel(id string) *models.NotificationChannel {
	return &models.NotificationChannel{
		ID:      id,
		Name:    "SOC Email",
		Type:    models.ChannelEmail,
		Enabled: true,
	}
}

func testTemplates() []*models.NotificationTemplate {
	variables := []models.TemplateVariable{
		{Name: "severity"},
		{Name: "ioc"},
		{Name: "alert_type"},
		{Name: "detected_at"},
	}

	message := models.MessageTemplate{
		Subject: "[{{severity}}] {{alert_type}}",
		Body:    "Indicator {{ioc.value}} ({{ioc.type}}) confidence {{ioc.confidence}} at {{detected_at}}",
	}

	return []*models.NotificationTemplate{
		{
			ID:        CriticalAlertTemplateID,
			Name:      "Critical Alert",
			Severity:  models.SeverityCritical,
			Channels:  map[models.ChannelType]models.MessageTemplate{models.ChannelEmail: message},
			Variables: variables,
		},
		{
			ID:        InfoUpdateTemplateID,
			Name:      "Informational Update",
			Severity:  models.SeverityInfo,
			Channels:  map[models.ChannelType]models.MessageTemplate{models.ChannelEmail: message},
			Variables: variables,
		},
	}
}

func newTestNotificationEngine(t *testing.T) (*Engine, *memoryStore, *fakeTransport) {
	t.Helper()

	store := newMemoryStore()
	transport := &fakeTransport{}

	engine := NewEngine(testLogger(), store, nil).
		WithTransports(map[models.ChannelType]Transport{models.ChannelEmail: transport})

	require.NoError(t, engine.RegisterChannel(emailChannel("email-soc")))

	for _, tmpl := range testTemplates() {
		require.NoError(t, engine.RegisterTemplate(tmpl))
	}

	return engine, store, transport
}

func threatData(severity models.Severity) *models.ThreatNotificationData {
	return &models.ThreatNotificationData{
		Indicator: models.Indicator{
			Type:       "ip",
			Value:      "203.0.113.7",
			Confidence: 0.95,
		},
		Severity:   severity,
		DetectedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		AlertType:  "malware_beacon",
		Recipients: []models.Recipient{
			{Name: "SOC", ChannelIDs: []string{"email-soc"}},
		},
	}
}

func TestSendThreatNotification_Delivered(t *testing.T) {
	engine, store, transport := newTestNotificationEngine(t)

	result, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityCritical))
	require.NoError(t, err)

	assert.Equal(t, models.NotificationDelivered, result.Status)
	assert.NotEmpty(t, result.NotificationID)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.DeliveryDelivered, result.Attempts[0].Status)
	assert.Equal(t, 1, transport.sentCount())

	record, err := store.NotificationByID(context.Background(), result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, CriticalAlertTemplateID, record.TemplateID)
	assert.Equal(t, []string{"email-soc"}, record.ChannelIDs)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.TotalSent)
	assert.Equal(t, int64(1), stats.TotalDelivered)
}

func TestSendThreatNotification_SeveritySelectsTemplate(t *testing.T) {
	engine, store, _ := newTestNotificationEngine(t)

	result, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityLow))
	require.NoError(t, err)

	record, err := store.NotificationByID(context.Background(), result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, InfoUpdateTemplateID, record.TemplateID)

	result, err = engine.SendThreatNotification(context.Background(), threatData(models.SeverityHigh))
	require.NoError(t, err)

	record, err = store.NotificationByID(context.Background(), result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, CriticalAlertTemplateID, record.TemplateID)
}

func TestSendThreatNotification_MissingTemplate(t *testing.T) {
	engine := NewEngine(testLogger(), newMemoryStore(), nil).
		WithTransports(map[models.ChannelType]Transport{models.ChannelEmail: &fakeTransport{}})

	_, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityCritical))
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSendThreatNotification_InvalidDataRejected(t *testing.T) {
	engine, _, _ := newTestNotificationEngine(t)

	data := threatData(models.SeverityCritical)
	data.AlertType = ""

	_, err := engine.SendThreatNotification(context.Background(), data)
	assert.Error(t, err)
}

func TestSendThreatNotification_EscalationTriggered(t *testing.T) {
	engine, _, _ := newTestNotificationEngine(t)

	policy := &models.EscalationPolicy{
		ID:   "critical-escalation",
		Name: "Critical Escalation",
		Triggers: []models.Condition{
			{Field: "severity", Operator: models.OperatorEquals, Value: "critical"},
			{Field: "ioc.confidence", Operator: models.OperatorGreaterThan, Value: 90},
		},
		Levels: []models.EscalationLevel{
			{
				Level:      1,
				Name:       "On-call",
				Delay:      time.Hour,
				Recipients: []models.Recipient{{Name: "On-call", ChannelIDs: []string{"email-soc"}}},
			},
		},
		Enabled: true,
	}
	require.NoError(t, engine.RegisterPolicy(policy))

	result, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityCritical))
	require.NoError(t, err)

	assert.True(t, result.EscalationTriggered)
	assert.Equal(t, "critical-escalation", result.EscalationPolicyID)
	assert.True(t, engine.escalation.Active(result.NotificationID))
	assert.Equal(t, int64(1), engine.Stats().EscalationsTriggered)
}

func TestSendThreatNotification_LowConfidenceDoesNotEscalate(t *testing.T) {
	engine, _, _ := newTestNotificationEngine(t)

	policy := &models.EscalationPolicy{
		ID:   "critical-escalation",
		Name: "Critical Escalation",
		Triggers: []models.Condition{
			{Field: "ioc.confidence", Operator: models.OperatorGreaterThan, Value: 90},
		},
		Levels: []models.EscalationLevel{
			{
				Level:      1,
				Delay:      time.Hour,
				Recipients: []models.Recipient{{Name: "On-call", ChannelIDs: []string{"email-soc"}}},
			},
		},
		Enabled: true,
	}
	require.NoError(t, engine.RegisterPolicy(policy))

	data := threatData(models.SeverityCritical)
	data.Indicator.Confidence = 0.4

	result, err := engine.SendThreatNotification(context.Background(), data)
	require.NoError(t, err)

	assert.False(t, result.EscalationTriggered)
	assert.False(t, engine.escalation.Active(result.NotificationID))
}

func TestSendThreatNotification_SuppressionPrecedesDelivery(t *testing.T) {
	engine, _, transport := newTestNotificationEngine(t)

	id, err := engine.CreateSuppression(&models.AlertSuppression{
		Name: "Maintenance window",
		Conditions: []models.Condition{
			{Field: "alert_type", Operator: models.OperatorEquals, Value: "malware_beacon"},
		},
		ExpiresAt: time.Now().Add(time.Hour),
		Enabled:   true,
	})
	require.NoError(t, err)

	result, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityCritical))
	require.NoError(t, err)

	assert.Equal(t, models.NotificationSuppressed, result.Status)
	assert.Equal(t, id, result.SuppressedBy)
	assert.Empty(t, result.NotificationID)
	assert.Empty(t, result.Attempts)
	assert.Zero(t, transport.sentCount())
	assert.Equal(t, int64(1), engine.Stats().TotalSuppressed)
}

func TestSendThreatNotification_UnknownChannelPartialDelivery(t *testing.T) {
	engine, _, _ := newTestNotificationEngine(t)

	data := threatData(models.SeverityCritical)
	data.Recipients = []models.Recipient{
		{Name: "SOC", ChannelIDs: []string{"email-soc", "ghost-channel"}},
	}

	result, err := engine.SendThreatNotification(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, models.NotificationPartiallyDelivered, result.Status)
	require.Len(t, result.Attempts, 2)

	var failed *models.DeliveryAttempt

	for _, attempt := range result.Attempts {
		if attempt.Status == models.DeliveryFailed {
			failed = attempt
		}
	}

	require.NotNil(t, failed)
	assert.Equal(t, "ghost-channel", failed.ChannelID)
	assert.Equal(t, "unknown channel", failed.Error)
}

func TestAcknowledge(t *testing.T) {
	engine, store, _ := newTestNotificationEngine(t)

	policy := &models.EscalationPolicy{
		ID:       "esc",
		Name:     "Escalation",
		Triggers: []models.Condition{{Field: "severity", Operator: models.OperatorEquals, Value: "critical"}},
		Levels: []models.EscalationLevel{
			{
				Level:      1,
				Delay:      time.Hour,
				Recipients: []models.Recipient{{Name: "On-call", ChannelIDs: []string{"email-soc"}}},
			},
		},
		Enabled: true,
	}
	require.NoError(t, engine.RegisterPolicy(policy))

	result, err := engine.SendThreatNotification(context.Background(), threatData(models.SeverityCritical))
	require.NoError(t, err)
	require.True(t, engine.escalation.Active(result.NotificationID))

	require.NoError(t, engine.Acknowledge(context.Background(), result.NotificationID, "analyst@example.com"))

	record, err := store.NotificationByID(context.Background(), result.NotificationID)
	require.NoError(t, err)
	assert.True(t, record.Ack.Acknowledged)
	assert.Equal(t, "analyst@example.com", record.Ack.By)
	require.NotNil(t, record.Ack.At)

	// Acknowledgment stops the escalation chain.
	assert.False(t, engine.escalation.Active(result.NotificationID))

	// A second acknowledgment is rejected and the original stands.
	err = engine.Acknowledge(context.Background(), result.NotificationID, "someone-else@example.com")
	assert.ErrorIs(t, err, ErrAlreadyAcknowledged)

	record, err = store.NotificationByID(context.Background(), result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.com", record.Ack.By)
}

func TestAcknowledge_UnknownNotification(t *testing.T) {
	engine, _, _ := newTestNotificationEngine(t)

	err := engine.Acknowledge(context.Background(), "no-such-id", "analyst")
	assert.ErrorIs(t, err, persistence.ErrNotificationNotFound)
}

func TestSendFromAutomation(t *testing.T) {
	engine, store, _ := newTestNotificationEngine(t)

	params := map[string]any{
		"severity":   "high",
		"alert_type": "automated_response",
		"recipients": []any{
			map[string]any{"name": "SOC", "channel_ids": []any{"email-soc"}},
		},
	}
	payload := map[string]any{
		"ioc": map[string]any{
			"value":      "evil.example.com",
			"type":       "domain",
			"confidence": 0.8,
		},
	}

	id, err := engine.SendFromAutomation(context.Background(), params, payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record, err := store.NotificationByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, record.Severity)
	assert.Equal(t, "evil.example.com", record.Context["indicator_value"])
}

func TestBuildContext(t *testing.T) {
	data := threatData(models.SeverityCritical)
	data.IncidentID = "INC-42"
	data.Recommendations = []string{"block the IP", "isolate the host"}

	contextData := buildContext(data)

	ioc, ok := contextData["ioc"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 95, ioc["confidence"])
	assert.Equal(t, "203.0.113.7", ioc["value"])

	assert.Equal(t, "critical", contextData["severity"])
	assert.Equal(t, "2026-03-14 09:30:00 UTC", contextData["detected_at"])
	assert.Equal(t, "INC-42", contextData["incident_id"])
	assert.Equal(t, "block the IP; isolate the host", contextData["recommendations"])
}

func TestAggregateStatus(t *testing.T) {
	delivered := &models.DeliveryAttempt{Status: models.DeliveryDelivered}
	failed := &models.DeliveryAttempt{Status: models.DeliveryFailed}

	assert.Equal(t, models.NotificationFailed, aggregateStatus(nil))
	assert.Equal(t, models.NotificationFailed, aggregateStatus([]*models.DeliveryAttempt{failed}))
	assert.Equal(t, models.NotificationDelivered, aggregateStatus([]*models.DeliveryAttempt{delivered, delivered}))
	assert.Equal(t, models.NotificationPartiallyDelivered, aggregateStatus([]*models.DeliveryAttempt{delivered, failed}))
}
