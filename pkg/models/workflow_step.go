package models

import "fmt"

// OnFailure selects how the engine reacts when a step's task fails.
type OnFailure string

const (
	OnFailureRetry    OnFailure = "retry"
	OnFailureContinue OnFailure = "continue"
	OnFailureFail     OnFailure = "fail"
	OnFailureFallback OnFailure = "fallback"
)

func ParseOnFailure(s string) (OnFailure, error) {
	switch OnFailure(s) {
	case OnFailureRetry, OnFailureContinue, OnFailureFail, OnFailureFallback:
		return OnFailure(s), nil
	default:
		return "", fmt.Errorf("unknown on-failure action %q", s)
	}
}

// ErrorHandling is a step's declared failure policy.
type ErrorHandling struct {
	OnFailure       OnFailure `json:"on_failure"                 yaml:"on_failure"`
	FallbackTaskID  string    `json:"fallback_task_id,omitempty" yaml:"fallback_task_id,omitempty"`
	ContinueOnError bool      `json:"continue_on_error"          yaml:"continue_on_error"`
}

// WorkflowStep is one unit of work within a workflow, bound to a task
// definition. InputMapping maps destination fields to source expressions over
// the accumulated context ("trigger.ioc.value", "steps.validate.is_valid");
// OutputMapping maps variable names to fields of the step's output.
type WorkflowStep struct {
	ID            string            `json:"id"                       yaml:"id"      validate:"required"`
	Name          string            `json:"name"                     yaml:"name"    validate:"required"`
	TaskID        string            `json:"task_id"                  yaml:"task_id" validate:"required"`
	Dependencies  []string          `json:"dependencies,omitempty"   yaml:"dependencies,omitempty"`
	Conditions    []Condition       `json:"conditions,omitempty"     yaml:"conditions,omitempty"`
	InputMapping  map[string]string `json:"input_mapping,omitempty"  yaml:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty" yaml:"output_mapping,omitempty"`
	ErrorHandling ErrorHandling     `json:"error_handling"           yaml:"error_handling"`
}
