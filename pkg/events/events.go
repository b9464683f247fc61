// Package events defines the lifecycle events published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/nocturnelabs/vigil/pkg/models"
)

type EventType string

// Topic is the bus topic carrying all vigil lifecycle events.
const Topic = "vigil.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerReceivedEvent EventType = "trigger.received"

	ExecutionStartedEvent   EventType = "workflow.execution.started"
	ExecutionCompletedEvent EventType = "workflow.execution.completed"
	ExecutionFailedEvent    EventType = "workflow.execution.failed"

	NotificationSentEvent       EventType = "notification.sent"
	NotificationSuppressedEvent EventType = "notification.suppressed"
	EscalationTriggeredEvent    EventType = "notification.escalation.triggered"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// TriggerReceived announces an external event that may start workflows or
// fire automation rules.
type TriggerReceived struct {
	BaseEvent

	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Source    string         `json:"source,omitempty"`
}

func (e TriggerReceived) GetType() EventType { return TriggerReceivedEvent }

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string             `json:"execution_id"`
	WorkflowID   string             `json:"workflow_id"`
	WorkflowName string             `json:"workflow_name"`
	Trigger      models.TriggerData `json:"trigger"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string                  `json:"execution_id"`
	WorkflowID  string                  `json:"workflow_id"`
	Status      models.ExecutionStatus  `json:"status"`
	Metrics     models.ExecutionMetrics `json:"metrics"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string                  `json:"execution_id"`
	WorkflowID  string                  `json:"workflow_id"`
	Error       string                  `json:"error"`
	Metrics     models.ExecutionMetrics `json:"metrics"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type NotificationSent struct {
	BaseEvent

	NotificationID string                    `json:"notification_id"`
	Severity       models.Severity           `json:"severity"`
	Status         models.NotificationStatus `json:"status"`
	Recipients     int                       `json:"recipients"`
}

func (e NotificationSent) GetType() EventType { return NotificationSentEvent }

type NotificationSuppressed struct {
	BaseEvent

	SuppressionID string          `json:"suppression_id"`
	Severity      models.Severity `json:"severity"`
	AlertType     string          `json:"alert_type"`
}

func (e NotificationSuppressed) GetType() EventType { return NotificationSuppressedEvent }

type EscalationTriggered struct {
	BaseEvent

	NotificationID string `json:"notification_id"`
	PolicyID       string `json:"policy_id"`
	Level          int    `json:"level"`
}

func (e EscalationTriggered) GetType() EventType { return EscalationTriggeredEvent }
