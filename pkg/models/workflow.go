package models

import (
	"fmt"
	"time"
)

// WorkflowKind determines the scheduling semantics of a workflow.
type WorkflowKind string

const (
	// WorkflowSequential runs steps strictly in declaration order; a fatal
	// step failure aborts everything after it.
	WorkflowSequential WorkflowKind = "sequential"

	// WorkflowParallel keeps declaration order for evaluation but a fatal
	// failure only blocks steps that (transitively) depend on the failed one.
	WorkflowParallel WorkflowKind = "parallel"

	// WorkflowConditional behaves like sequential; steps are expected to
	// carry guard conditions partitioning the execution paths.
	WorkflowConditional WorkflowKind = "conditional"
)

func ParseWorkflowKind(s string) (WorkflowKind, error) {
	switch WorkflowKind(s) {
	case WorkflowSequential, WorkflowParallel, WorkflowConditional:
		return WorkflowKind(s), nil
	default:
		return "", fmt.Errorf("unknown workflow kind %q", s)
	}
}

// TriggerCondition names an event and the parameter filters that must hold
// for the event to trigger the workflow.
type TriggerCondition struct {
	EventType string      `json:"event_type"        yaml:"event_type" validate:"required"`
	Filters   []Condition `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// WorkflowConfig carries workflow-level execution settings.
type WorkflowConfig struct {
	MaxExecutionTime       time.Duration `json:"max_execution_time"                yaml:"-"`
	ParallelExecution      bool          `json:"parallel_execution"                yaml:"parallel_execution"`
	AutoRetry              bool          `json:"auto_retry"                        yaml:"auto_retry"`
	NotificationRecipients []string      `json:"notification_recipients,omitempty" yaml:"notification_recipients,omitempty"`
	EscalationRules        []string      `json:"escalation_rules,omitempty"        yaml:"escalation_rules,omitempty"`
}

// Workflow is a declarative graph of steps triggered by an event.
type Workflow struct {
	ID        string             `json:"id"        yaml:"id"        validate:"required"`
	Name      string             `json:"name"      yaml:"name"      validate:"required,min=3"`
	Version   string             `json:"version"   yaml:"version"`
	Kind      WorkflowKind       `json:"kind"      yaml:"kind"      validate:"required"`
	Triggers  []TriggerCondition `json:"triggers"  yaml:"triggers"`
	Steps     []*WorkflowStep    `json:"steps"     yaml:"steps"     validate:"required,min=1,dive"`
	Config    WorkflowConfig     `json:"config"    yaml:"config"`
	Enabled   bool               `json:"enabled"   yaml:"enabled"`
	CreatedAt time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt time.Time          `json:"updated_at" yaml:"-"`
}

// StepByID returns the step with the given id, if declared.
func (w *Workflow) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// MatchesTrigger reports whether any of the workflow's trigger conditions
// accepts the given event.
func (w *Workflow) MatchesTrigger(eventType string, payload map[string]any) (bool, error) {
	for _, trigger := range w.Triggers {
		if trigger.EventType != eventType {
			continue
		}

		ok, err := AllMatch(trigger.Filters, payload)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}
