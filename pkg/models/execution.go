package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution. Transitions
// only move forward: pending -> running -> {completed | failed | cancelled}.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	switch ExecutionStatus(s) {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted,
		ExecutionFailed, ExecutionCancelled:
		return ExecutionStatus(s), nil
	default:
		return "", fmt.Errorf("unknown execution status %q", s)
	}
}

// CanTransitionTo enforces the forward-only lifecycle.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionCancelled
	case ExecutionRunning:
		return next == ExecutionCompleted || next == ExecutionFailed || next == ExecutionCancelled
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// StepStatus is the state of a single step within an execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// TriggerData is the event and payload that initiated an execution.
type TriggerData struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
}

// StepResult records the outcome of one step. Immutable once the step
// finishes.
type StepResult struct {
	StepID      string         `json:"step_id"`
	TaskID      string         `json:"task_id"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
	Error       string         `json:"error,omitempty"`
}

// ExecutionMetrics aggregates per-execution counters.
type ExecutionMetrics struct {
	TotalSteps     int   `json:"total_steps"`
	CompletedSteps int   `json:"completed_steps"`
	FailedSteps    int   `json:"failed_steps"`
	SkippedSteps   int   `json:"skipped_steps"`
	DurationMs     int64 `json:"duration_ms"`
}

// WorkflowExecution is the append-only record of one triggered run.
type WorkflowExecution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      ExecutionStatus        `json:"status"`
	Trigger     TriggerData            `json:"trigger"`
	StepResults map[string]*StepResult `json:"step_results"`
	Variables   map[string]any         `json:"variables,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metrics     ExecutionMetrics       `json:"metrics"`
}

// DependenciesCompleted reports whether every listed step id has a completed
// result recorded.
func (e *WorkflowExecution) DependenciesCompleted(dependencies []string) bool {
	for _, dep := range dependencies {
		result, ok := e.StepResults[dep]
		if !ok || result.Status != StepCompleted {
			return false
		}
	}

	return true
}
