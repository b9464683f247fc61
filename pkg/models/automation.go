package models

import (
	"fmt"
	"time"
)

// ActionKind names what an automation rule action does when its rule fires.
type ActionKind string

const (
	ActionWorkflowExecution ActionKind = "workflow_execution"
	ActionNotification      ActionKind = "notification"
	ActionIntegration       ActionKind = "integration"
)

func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionWorkflowExecution, ActionNotification, ActionIntegration:
		return ActionKind(s), nil
	default:
		return "", fmt.Errorf("unknown action kind %q", s)
	}
}

// RuleTrigger matches an event by type plus AND-combined field conditions.
type RuleTrigger struct {
	EventType  string      `json:"event_type"           yaml:"event_type" validate:"required"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// AutomationAction is one action executed when a rule fires, optionally
// delayed.
type AutomationAction struct {
	Kind       ActionKind     `json:"kind"                 yaml:"kind" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Delay      time.Duration  `json:"delay,omitempty"      yaml:"-"`
}

// AutomationRule fires a list of actions when a named event matches its
// trigger. Priority only orders evaluation when several rules match the same
// event.
type AutomationRule struct {
	ID       string             `json:"id"       yaml:"id"   validate:"required"`
	Name     string             `json:"name"     yaml:"name" validate:"required"`
	Trigger  RuleTrigger        `json:"trigger"  yaml:"trigger"`
	Actions  []AutomationAction `json:"actions"  yaml:"actions" validate:"required,min=1,dive"`
	Enabled  bool               `json:"enabled"  yaml:"enabled"`
	Priority int                `json:"priority" yaml:"priority"`
}

// AutomationResultStatus is the outcome of one fired action.
type AutomationResultStatus string

const (
	AutomationSuccess AutomationResultStatus = "success"
	AutomationFailed  AutomationResultStatus = "failed"
	AutomationPending AutomationResultStatus = "pending"
)

// AutomationResult records the execution of one action of one matched rule.
type AutomationResult struct {
	RuleID     string                 `json:"rule_id"`
	ActionKind ActionKind             `json:"action_kind"`
	Status     AutomationResultStatus `json:"status"`
	ExecutedAt time.Time              `json:"executed_at"`
	Error      string                 `json:"error,omitempty"`
	Output     map[string]any         `json:"output,omitempty"`
}
