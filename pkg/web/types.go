package web

import (
	"time"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

// ExecuteWorkflowRequest triggers a workflow run.
type ExecuteWorkflowRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
}

// EventRequest feeds one external event into trigger matching and the
// automation rules.
type EventRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
}

// AcknowledgeRequest acknowledges a sent notification.
type AcknowledgeRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// SuppressionRequest creates an alert suppression.
type SuppressionRequest struct {
	Name            string             `json:"name"`
	Conditions      []models.Condition `json:"conditions" validate:"required,min=1,dive"`
	DurationMinutes int                `json:"duration_minutes" validate:"required,min=1"`
	CreatedBy       string             `json:"created_by"`
}

// EventResponse reports what one event triggered.
type EventResponse struct {
	EventType         string                      `json:"event_type"`
	Executions        []*models.WorkflowExecution `json:"executions"`
	AutomationResults []*models.AutomationResult  `json:"automation_results"`
	ReceivedAt        time.Time                   `json:"received_at"`
}

// StatisticsResponse aggregates the engines' counters.
type StatisticsResponse struct {
	WorkflowTotals workflow.WorkflowStats            `json:"workflow_totals"`
	Workflows      map[string]workflow.WorkflowStats `json:"workflows"`
	Notifications  models.NotificationStats          `json:"notifications"`
}
