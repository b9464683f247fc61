// Package automation evaluates event-driven rules and fires their actions:
// workflow executions, notifications and outbound integrations.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

// NotificationSender dispatches a notification action. Implemented by the
// notification engine.
type NotificationSender interface {
	SendFromAutomation(ctx context.Context, params map[string]any, payload map[string]any) (string, error)
}

// Engine matches incoming events against registered rules and runs the
// matched rules' actions in priority order.
type Engine struct {
	logger     *slog.Logger
	executor   *workflow.Engine
	notifier   NotificationSender
	httpClient *http.Client
	clock      clockwork.Clock

	mu    sync.RWMutex
	rules map[string]*models.AutomationRule
}

// NewEngine creates an automation engine. The notifier may be nil when the
// notification engine is not wired; notification actions then fail cleanly.
func NewEngine(logger *slog.Logger, executor *workflow.Engine, notifier NotificationSender) *Engine {
	return &Engine{
		logger:     logger.With("module", "automation_engine"),
		executor:   executor,
		notifier:   notifier,
		httpClient: &http.Client{},
		clock:      clockwork.NewRealClock(),
		rules:      make(map[string]*models.AutomationRule),
	}
}

// WithClock replaces the engine clock. Used by tests to control action
// delays.
func (e *Engine) WithClock(clock clockwork.Clock) *Engine {
	e.clock = clock

	return e
}

// RegisterRule adds or replaces a rule.
func (e *Engine) RegisterRule(rule *models.AutomationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule has no id")
	}

	for i, action := range rule.Actions {
		if _, err := models.ParseActionKind(string(action.Kind)); err != nil {
			return fmt.Errorf("rule %q action %d: %w", rule.ID, i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules[rule.ID] = rule

	return nil
}

// Rules returns all registered rules sorted by priority, then id.
func (e *Engine) Rules() []*models.AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*models.AutomationRule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}

	sortRules(rules)

	return rules
}

// ProcessEvent evaluates every enabled rule against the event and runs the
// actions of each matching rule. A failing rule never blocks the others; its
// failure is captured in the returned results.
func (e *Engine) ProcessEvent(ctx context.Context, eventType string, payload map[string]any) []*models.AutomationResult {
	matched := e.matchRules(eventType, payload)

	if len(matched) == 0 {
		return nil
	}

	e.logger.InfoContext(ctx, "Automation rules matched", "event_type", eventType, "rules", len(matched))

	var results []*models.AutomationResult

	for _, rule := range matched {
		results = append(results, e.runRule(ctx, rule, payload)...)
	}

	return results
}

func (e *Engine) matchRules(eventType string, payload map[string]any) []*models.AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []*models.AutomationRule

	for _, rule := range e.rules {
		if !rule.Enabled || rule.Trigger.EventType != eventType {
			continue
		}

		ok, err := models.AllMatch(rule.Trigger.Conditions, payload)
		if err != nil {
			e.logger.Warn("Rule condition evaluation failed", "rule_id", rule.ID, "error", err)

			continue
		}

		if ok {
			matched = append(matched, rule)
		}
	}

	sortRules(matched)

	return matched
}

// runRule executes a rule's actions in declared order, producing one result
// per action. A failed action does not stop the ones declared after it; only
// a cancelled context cuts the rule short.
func (e *Engine) runRule(ctx context.Context, rule *models.AutomationRule, payload map[string]any) []*models.AutomationResult {
	logger := e.logger.With("rule_id", rule.ID)
	results := make([]*models.AutomationResult, 0, len(rule.Actions))

	for _, action := range rule.Actions {
		if action.Delay > 0 {
			logger.InfoContext(ctx, "Delaying action", "kind", action.Kind, "delay", action.Delay)

			select {
			case <-ctx.Done():
				results = append(results, &models.AutomationResult{
					RuleID:     rule.ID,
					ActionKind: action.Kind,
					Status:     models.AutomationFailed,
					ExecutedAt: e.clock.Now().UTC(),
					Error:      ctx.Err().Error(),
				})

				return results
			case <-e.clock.After(action.Delay):
			}
		}

		result := &models.AutomationResult{
			RuleID:     rule.ID,
			ActionKind: action.Kind,
			ExecutedAt: e.clock.Now().UTC(),
		}

		output, err := e.runAction(ctx, action, payload)
		if err != nil {
			result.Status = models.AutomationFailed
			result.Error = err.Error()
			results = append(results, result)

			logger.ErrorContext(ctx, "Automation action failed", "kind", action.Kind, "error", err)

			continue
		}

		result.Status = models.AutomationSuccess
		result.Output = output
		results = append(results, result)
	}

	return results
}

func (e *Engine) runAction(ctx context.Context, action models.AutomationAction, payload map[string]any) (map[string]any, error) {
	switch action.Kind {
	case models.ActionWorkflowExecution:
		return e.runWorkflowAction(ctx, action, payload)
	case models.ActionNotification:
		return e.runNotificationAction(ctx, action, payload)
	case models.ActionIntegration:
		return e.runIntegrationAction(ctx, action, payload)
	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Engine) runWorkflowAction(ctx context.Context, action models.AutomationAction, payload map[string]any) (map[string]any, error) {
	workflowID, _ := action.Parameters["workflow_id"].(string)
	if workflowID == "" {
		return nil, fmt.Errorf("workflow_execution action missing workflow_id parameter")
	}

	eventType, _ := action.Parameters["event_type"].(string)

	execution, err := e.executor.Execute(ctx, workflowID, models.TriggerData{
		EventType: eventType,
		Payload:   payload,
		Timestamp: e.clock.Now().UTC(),
		Source:    "automation",
	})
	if err != nil {
		return nil, fmt.Errorf("execute workflow %q: %w", workflowID, err)
	}

	return map[string]any{
		"execution_id": execution.ID,
		"status":       string(execution.Status),
	}, nil
}

func (e *Engine) runNotificationAction(ctx context.Context, action models.AutomationAction, payload map[string]any) (map[string]any, error) {
	if e.notifier == nil {
		return nil, fmt.Errorf("notification engine not configured")
	}

	notificationID, err := e.notifier.SendFromAutomation(ctx, action.Parameters, payload)
	if err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}

	return map[string]any{"notification_id": notificationID}, nil
}

// runIntegrationAction posts the event payload to an external endpoint.
func (e *Engine) runIntegrationAction(ctx context.Context, action models.AutomationAction, payload map[string]any) (map[string]any, error) {
	url, _ := action.Parameters["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("integration action missing url parameter")
	}

	body, err := json.Marshal(map[string]any{
		"parameters": action.Parameters,
		"payload":    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal integration payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build integration request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call integration endpoint: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("integration endpoint returned status %d", resp.StatusCode)
	}

	return map[string]any{"status_code": resp.StatusCode}, nil
}

func sortRules(rules []*models.AutomationRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}

		return rules[i].ID < rules[j].ID
	})
}
