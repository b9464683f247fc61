package models

import (
	"fmt"
	"time"
)

// TaskCategory classifies a task definition by the kind of work it performs.
type TaskCategory string

const (
	TaskCategoryValidation   TaskCategory = "validation"
	TaskCategoryEnrichment   TaskCategory = "enrichment"
	TaskCategoryAnalysis     TaskCategory = "analysis"
	TaskCategoryAction       TaskCategory = "action"
	TaskCategoryNotification TaskCategory = "notification"
	TaskCategoryIntegration  TaskCategory = "integration"
)

func ParseTaskCategory(s string) (TaskCategory, error) {
	switch TaskCategory(s) {
	case TaskCategoryValidation, TaskCategoryEnrichment, TaskCategoryAnalysis,
		TaskCategoryAction, TaskCategoryNotification, TaskCategoryIntegration:
		return TaskCategory(s), nil
	default:
		return "", fmt.Errorf("unknown task category %q", s)
	}
}

// AutomationLevel describes how much human involvement a task requires.
type AutomationLevel string

const (
	AutomationFull             AutomationLevel = "fully_automated"
	AutomationSemi             AutomationLevel = "semi_automated"
	AutomationRequiresApproval AutomationLevel = "requires_approval"
	AutomationManualOnly       AutomationLevel = "manual_only"
)

func ParseAutomationLevel(s string) (AutomationLevel, error) {
	switch AutomationLevel(s) {
	case AutomationFull, AutomationSemi, AutomationRequiresApproval, AutomationManualOnly:
		return AutomationLevel(s), nil
	default:
		return "", fmt.Errorf("unknown automation level %q", s)
	}
}

// RetryPolicy bounds re-attempts of a failing task execution.
type RetryPolicy struct {
	MaxAttempts        int           `json:"max_attempts"        yaml:"max_attempts"`
	Delay              time.Duration `json:"delay"               yaml:"-"`
	ExponentialBackoff bool          `json:"exponential_backoff" yaml:"exponential_backoff"`
}

// IOSchema declares the fields a task consumes or produces. Types map field
// names to JSON Schema type names ("string", "number", "boolean", "object",
// "array").
type IOSchema struct {
	Required []string          `json:"required,omitempty" yaml:"required,omitempty"`
	Optional []string          `json:"optional,omitempty" yaml:"optional,omitempty"`
	Types    map[string]string `json:"types,omitempty"    yaml:"types,omitempty"`
}

// Equal reports whether two schemas declare the same contract. Used to decide
// whether a duplicate task registration is compatible.
func (s IOSchema) Equal(other IOSchema) bool {
	if len(s.Required) != len(other.Required) || len(s.Optional) != len(other.Optional) ||
		len(s.Types) != len(other.Types) {
		return false
	}

	for i, field := range s.Required {
		if other.Required[i] != field {
			return false
		}
	}

	for i, field := range s.Optional {
		if other.Optional[i] != field {
			return false
		}
	}

	for field, typ := range s.Types {
		if other.Types[field] != typ {
			return false
		}
	}

	return true
}

// JSONSchema renders the declared input contract as a JSON Schema document
// suitable for gojsonschema validation.
func (s IOSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Types))
	for field, typ := range s.Types {
		properties[field] = map[string]any{"type": typ}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}

	return doc
}

// TaskDefinition is a reusable, schema-typed unit of work. Immutable once
// registered.
type TaskDefinition struct {
	ID              string          `json:"id"               yaml:"id"               validate:"required"`
	Name            string          `json:"name"             yaml:"name"             validate:"required"`
	Category        TaskCategory    `json:"category"         yaml:"category"         validate:"required"`
	Type            string          `json:"type"             yaml:"type"             validate:"required"` // executor type in the registry
	InputSchema     IOSchema        `json:"input_schema"     yaml:"input_schema"`
	OutputSchema    IOSchema        `json:"output_schema"    yaml:"output_schema"`
	Timeout         time.Duration   `json:"timeout"          yaml:"-"`
	Retry           RetryPolicy     `json:"retry"            yaml:"retry"`
	AutomationLevel AutomationLevel `json:"automation_level" yaml:"automation_level" validate:"required"`
	Configuration   map[string]any  `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}
