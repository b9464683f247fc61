package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/vigil/pkg/automation"
	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/persistence/file"
	"github.com/nocturnelabs/vigil/pkg/protocol"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/web"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

type stubValidateFactory struct{}

func (stubValidateFactory) Create(_ map[string]any) (protocol.TaskExecutor, error) {
	return stubValidateExecutor{}, nil
}

func (stubValidateFactory) ID() string             { return "ioc_validate" }
func (stubValidateFactory) Name() string           { return "Indicator Validator" }
func (stubValidateFactory) Description() string    { return "Validates indicator syntax" }
func (stubValidateFactory) Schema() map[string]any { return map[string]any{} }

type stubValidateExecutor struct{}

func (stubValidateExecutor) Execute(_ context.Context, _ map[string]any, _ *slog.Logger) (map[string]any, error) {
	return map[string]any{"is_valid": true}, nil
}

type recordingTransport struct {
	sent int
}

func (r *recordingTransport) Send(_ context.Context, _ *models.NotificationChannel, _ models.Recipient, _ notification.Message) error {
	r.sent++

	return nil
}

type testEnv struct {
	app       *fiber.App
	store     *file.Persistence
	transport *recordingTransport
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterExecutor(stubValidateFactory{})

	require.NoError(t, reg.Tasks().Register(&models.TaskDefinition{
		ID:              "validate-ioc",
		Name:            "Validate Indicator",
		Category:        models.TaskCategoryValidation,
		Type:            "ioc_validate",
		AutomationLevel: models.AutomationFull,
	}))

	require.NoError(t, reg.Workflows().Register(&models.Workflow{
		ID:      "indicator-triage",
		Name:    "Indicator Triage",
		Kind:    models.WorkflowSequential,
		Enabled: true,
		Triggers: []models.TriggerCondition{
			{EventType: "ioc_detected"},
		},
		Steps: []*models.WorkflowStep{
			{ID: "validate", Name: "Validate", TaskID: "validate-ioc"},
		},
	}))

	require.NoError(t, reg.Workflows().Register(&models.Workflow{
		ID:      "retired-flow",
		Name:    "Retired Flow",
		Kind:    models.WorkflowSequential,
		Enabled: false,
		Steps: []*models.WorkflowStep{
			{ID: "validate", Name: "Validate", TaskID: "validate-ioc"},
		},
	}))

	transport := &recordingTransport{}

	notifier := notification.NewEngine(logger, store, nil).
		WithTransports(map[models.ChannelType]notification.Transport{
			models.ChannelEmail: transport,
		})

	require.NoError(t, notifier.RegisterChannel(&models.NotificationChannel{
		ID:      "email-soc",
		Name:    "SOC Email",
		Type:    models.ChannelEmail,
		Enabled: true,
	}))

	variables := []models.TemplateVariable{
		{Name: "severity"},
		{Name: "ioc"},
		{Name: "alert_type"},
	}
	message := models.MessageTemplate{
		Subject: "[{{severity}}] {{alert_type}}",
		Body:    "Indicator {{ioc.value}} flagged",
	}

	require.NoError(t, notifier.RegisterTemplate(&models.NotificationTemplate{
		ID:        notification.CriticalAlertTemplateID,
		Name:      "Critical Alert",
		Severity:  models.SeverityCritical,
		Channels:  map[models.ChannelType]models.MessageTemplate{models.ChannelEmail: message},
		Variables: variables,
	}))
	require.NoError(t, notifier.RegisterTemplate(&models.NotificationTemplate{
		ID:        notification.InfoUpdateTemplateID,
		Name:      "Informational Update",
		Severity:  models.SeverityInfo,
		Channels:  map[models.ChannelType]models.MessageTemplate{models.ChannelEmail: message},
		Variables: variables,
	}))

	executor := workflow.NewEngine(logger, reg, store, nil)

	auto := automation.NewEngine(logger, executor, notifier)
	require.NoError(t, auto.RegisterRule(&models.AutomationRule{
		ID:       "notify-on-detect",
		Name:     "Notify on detection",
		Enabled:  true,
		Priority: 5,
		Trigger:  models.RuleTrigger{EventType: "ioc_detected"},
		Actions:  []models.AutomationAction{
			{
				Kind: models.ActionNotification,
				Parameters: map[string]any{
					"severity":   "high",
					"alert_type": "malware_beacon",
					"recipients": []any{
						map[string]any{"name": "SOC", "channel_ids": []any{"email-soc"}},
					},
				},
			},
		},
	}))

	handlers := web.NewAPIHandlers(reg, executor, auto, notifier, store)

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, store: store, transport: transport}
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) *http.Response {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func threatPayload() map[string]any {
	return map[string]any{
		"indicator": map[string]any{
			"type":       "ip",
			"value":      "203.0.113.7",
			"confidence": 0.9,
		},
		"severity":    "critical",
		"alert_type":  "malware_beacon",
		"detected_at": time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		"recipients": []map[string]any{
			{"name": "SOC", "channel_ids": []string{"email-soc"}},
		},
	}
}

func TestGetWorkflows(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workflows []models.Workflow `json:"workflows"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Workflows, 2)

	ids := []string{body.Workflows[0].ID, body.Workflows[1].ID}
	assert.Contains(t, ids, "indicator-triage")
	assert.Contains(t, ids, "retired-flow")
}

func TestGetWorkflow_NotFound(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/workflows/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "json")

	var problem struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}
	decodeBody(t, resp, &problem)

	assert.Equal(t, "not_found", problem.Type)
	assert.Equal(t, "workflow not found", problem.Detail)
}

func TestExecuteWorkflow(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows/indicator-triage/execute", web.ExecuteWorkflowRequest{
		EventType: "ioc_detected",
		Payload:   map[string]any{"value": "203.0.113.7"},
		Source:    "api-test",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var execution models.WorkflowExecution
	decodeBody(t, resp, &execution)

	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Equal(t, "indicator-triage", execution.WorkflowID)
	assert.NotEmpty(t, execution.ID)
	require.Contains(t, execution.StepResults, "validate")
	assert.Equal(t, models.StepCompleted, execution.StepResults["validate"].Status)

	listResp := doJSON(t, env.app, http.MethodGet, "/executions", nil)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var list struct {
		Executions []models.WorkflowExecution `json:"executions"`
	}
	decodeBody(t, listResp, &list)
	require.Len(t, list.Executions, 1)
	assert.Equal(t, execution.ID, list.Executions[0].ID)

	getResp := doJSON(t, env.app, http.MethodGet, "/executions/"+execution.ID, nil)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched models.WorkflowExecution
	decodeBody(t, getResp, &fetched)
	assert.Equal(t, execution.ID, fetched.ID)
}

func TestGetExecutions_StatusFilter(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows/indicator-triage/execute", web.ExecuteWorkflowRequest{
		EventType: "ioc_detected",
		Payload:   map[string]any{"value": "203.0.113.7"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var list struct {
		Executions []models.WorkflowExecution `json:"executions"`
	}

	completedResp := doJSON(t, env.app, http.MethodGet, "/executions?status=completed", nil)
	assert.Equal(t, http.StatusOK, completedResp.StatusCode)
	decodeBody(t, completedResp, &list)
	assert.Len(t, list.Executions, 1)

	failedResp := doJSON(t, env.app, http.MethodGet, "/executions?status=failed", nil)
	assert.Equal(t, http.StatusOK, failedResp.StatusCode)
	decodeBody(t, failedResp, &list)
	assert.Empty(t, list.Executions)

	badResp := doJSON(t, env.app, http.MethodGet, "/executions?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestExecuteWorkflow_MissingEventType(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows/indicator-triage/execute", map[string]any{
		"payload": map[string]any{"value": "203.0.113.7"},
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteWorkflow_UnknownWorkflow(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows/ghost/execute", web.ExecuteWorkflowRequest{
		EventType: "ioc_detected",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteWorkflow_Disabled(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/workflows/retired-flow/execute", web.ExecuteWorkflowRequest{
		EventType: "ioc_detected",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var problem struct {
		Type string `json:"type"`
	}
	decodeBody(t, resp, &problem)
	assert.Equal(t, "workflow_disabled", problem.Type)
}

func TestGetExecution_NotFound(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/executions/ghost", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostEvent_TriggersWorkflowAndRules(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/events", web.EventRequest{
		EventType: "ioc_detected",
		Payload: map[string]any{
			"severity": "critical",
			"ioc": map[string]any{
				"value":      "203.0.113.7",
				"type":       "ip",
				"confidence": 0.9,
			},
		},
		Source: "sensor-7",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body web.EventResponse
	decodeBody(t, resp, &body)

	assert.Equal(t, "ioc_detected", body.EventType)
	require.Len(t, body.Executions, 1)
	assert.Equal(t, models.ExecutionCompleted, body.Executions[0].Status)

	require.Len(t, body.AutomationResults, 1)
	assert.Equal(t, "notify-on-detect", body.AutomationResults[0].RuleID)
	assert.Equal(t, models.AutomationSuccess, body.AutomationResults[0].Status)
	assert.Equal(t, 1, env.transport.sent)
}

func TestPostEvent_NoMatches(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/events", web.EventRequest{
		EventType: "heartbeat",
		Payload:   map[string]any{},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body web.EventResponse
	decodeBody(t, resp, &body)

	assert.Empty(t, body.Executions)
	assert.Empty(t, body.AutomationResults)
	assert.Equal(t, 0, env.transport.sent)
}

func TestGetRules(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/rules", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Rules []models.AutomationRule `json:"rules"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Rules, 1)
	assert.Equal(t, "notify-on-detect", body.Rules[0].ID)
}

func TestSendNotification(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/notifications", threatPayload())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var result models.NotificationResult
	decodeBody(t, resp, &result)

	assert.Equal(t, models.NotificationDelivered, result.Status)
	assert.NotEmpty(t, result.NotificationID)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, env.transport.sent)

	getResp := doJSON(t, env.app, http.MethodGet, "/notifications/"+result.NotificationID, nil)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var record models.SentNotification
	decodeBody(t, getResp, &record)
	assert.Equal(t, result.NotificationID, record.ID)

	listResp := doJSON(t, env.app, http.MethodGet, "/notifications", nil)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var list struct {
		Notifications []models.SentNotification `json:"notifications"`
	}
	decodeBody(t, listResp, &list)
	require.Len(t, list.Notifications, 1)
}

func TestSendNotification_InvalidBody(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewBufferString("not-json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcknowledgeNotification(t *testing.T) {
	env := setupTestApp(t)

	sendResp := doJSON(t, env.app, http.MethodPost, "/notifications", threatPayload())
	require.Equal(t, http.StatusCreated, sendResp.StatusCode)

	var result models.NotificationResult
	decodeBody(t, sendResp, &result)

	ackResp := doJSON(t, env.app, http.MethodPost, "/notifications/"+result.NotificationID+"/ack", web.AcknowledgeRequest{
		Actor: "analyst@example.com",
	})
	defer func() { _ = ackResp.Body.Close() }()
	assert.Equal(t, http.StatusNoContent, ackResp.StatusCode)

	again := doJSON(t, env.app, http.MethodPost, "/notifications/"+result.NotificationID+"/ack", web.AcknowledgeRequest{
		Actor: "second@example.com",
	})
	assert.Equal(t, http.StatusConflict, again.StatusCode)

	var problem struct {
		Type string `json:"type"`
	}
	decodeBody(t, again, &problem)
	assert.Equal(t, "already_acknowledged", problem.Type)
}

func TestAcknowledgeNotification_NotFound(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/notifications/ghost/ack", web.AcknowledgeRequest{
		Actor: "analyst@example.com",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSuppressionLifecycle(t *testing.T) {
	env := setupTestApp(t)

	createResp := doJSON(t, env.app, http.MethodPost, "/suppressions", web.SuppressionRequest{
		Name: "Maintenance window",
		Conditions: []models.Condition{
			{Field: "alert_type", Operator: models.OperatorEquals, Value: "scan_detected"},
		},
		DurationMinutes: 60,
		CreatedBy:       "analyst",
	})
	assert.Equal(t, http.StatusCreated, createResp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, createResp, &created)
	require.NotEmpty(t, created.ID)

	listResp := doJSON(t, env.app, http.MethodGet, "/suppressions", nil)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var list struct {
		Suppressions []models.AlertSuppression `json:"suppressions"`
	}
	decodeBody(t, listResp, &list)
	require.Len(t, list.Suppressions, 1)
	assert.Equal(t, created.ID, list.Suppressions[0].ID)

	deleteResp := doJSON(t, env.app, http.MethodDelete, "/suppressions/"+created.ID, nil)
	defer func() { _ = deleteResp.Body.Close() }()
	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)

	afterResp := doJSON(t, env.app, http.MethodGet, "/suppressions", nil)

	var after struct {
		Suppressions []models.AlertSuppression `json:"suppressions"`
	}
	decodeBody(t, afterResp, &after)
	assert.Empty(t, after.Suppressions)
}

func TestCreateSuppression_RequiresConditions(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/suppressions", web.SuppressionRequest{
		Name:            "Empty",
		DurationMinutes: 60,
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetChannels(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/channels", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Channels []models.NotificationChannel `json:"channels"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Channels, 1)
	assert.Equal(t, "email-soc", body.Channels[0].ID)
}

func TestGetStatistics(t *testing.T) {
	env := setupTestApp(t)

	execResp := doJSON(t, env.app, http.MethodPost, "/workflows/indicator-triage/execute", web.ExecuteWorkflowRequest{
		EventType: "ioc_detected",
	})
	require.Equal(t, http.StatusCreated, execResp.StatusCode)
	_ = execResp.Body.Close()

	sendResp := doJSON(t, env.app, http.MethodPost, "/notifications", threatPayload())
	require.Equal(t, http.StatusCreated, sendResp.StatusCode)
	_ = sendResp.Body.Close()

	resp := doJSON(t, env.app, http.MethodGet, "/statistics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats web.StatisticsResponse
	decodeBody(t, resp, &stats)

	assert.Equal(t, int64(1), stats.WorkflowTotals.Executions)
	assert.Equal(t, int64(1), stats.WorkflowTotals.Completed)
	require.Contains(t, stats.Workflows, "indicator-triage")
	assert.Equal(t, int64(1), stats.Notifications.TotalSent)
	assert.Equal(t, int64(1), stats.Notifications.TotalDelivered)
}

func TestGetHealth(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Registry    string `json:"registry"`
		Persistence string `json:"persistence"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "ok", body.Persistence)
	assert.NotEmpty(t, body.Registry)
}

func TestGetHealth_NoExecutors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(logger)

	notifier := notification.NewEngine(logger, store, nil)
	executor := workflow.NewEngine(logger, reg, store, nil)
	auto := automation.NewEngine(logger, executor, notifier)

	app := fiber.New()
	web.NewAPIHandlers(reg, executor, auto, notifier, store).Register(app)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
