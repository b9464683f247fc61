// Package config loads the engine's declarative definitions (tasks,
// workflows, rules, channels, templates, policies, suppressions) from YAML.
// Durations are declared as *_seconds integers and converted at load time.
package config

import (
	"time"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// Definitions is the fully converted configuration set ready for
// registration.
type Definitions struct {
	Tasks        []*models.TaskDefinition
	Workflows    []*models.Workflow
	Rules        []*models.AutomationRule
	Channels     []*models.NotificationChannel
	Templates    []*models.NotificationTemplate
	Policies     []*models.EscalationPolicy
	Suppressions []*models.AlertSuppression
}

// rawDefinitions mirrors the YAML document layout.
type rawDefinitions struct {
	Tasks        []rawTask                      `yaml:"tasks"`
	Workflows    []rawWorkflow                  `yaml:"workflows"`
	Rules        []rawRule                      `yaml:"rules"`
	Channels     []rawChannel                   `yaml:"channels"`
	Templates    []*models.NotificationTemplate `yaml:"templates"`
	Policies     []rawPolicy                    `yaml:"escalation_policies"`
	Suppressions []*models.AlertSuppression     `yaml:"suppressions"`
}

type rawTask struct {
	models.TaskDefinition `yaml:",inline"`

	TimeoutSeconds    int `yaml:"timeout_seconds"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

func (r rawTask) convert() *models.TaskDefinition {
	task := r.TaskDefinition
	task.Timeout = seconds(r.TimeoutSeconds)
	task.Retry.Delay = seconds(r.RetryDelaySeconds)

	return &task
}

type rawWorkflow struct {
	models.Workflow `yaml:",inline"`

	MaxExecutionSeconds int `yaml:"max_execution_seconds"`
}

func (r rawWorkflow) convert() *models.Workflow {
	workflow := r.Workflow
	workflow.Config.MaxExecutionTime = seconds(r.MaxExecutionSeconds)

	return &workflow
}

type rawRule struct {
	models.AutomationRule `yaml:",inline"`

	ActionDelaySeconds []int `yaml:"action_delay_seconds"`
}

func (r rawRule) convert() *models.AutomationRule {
	rule := r.AutomationRule

	for i := range rule.Actions {
		if i < len(r.ActionDelaySeconds) {
			rule.Actions[i].Delay = seconds(r.ActionDelaySeconds[i])
		}
	}

	return &rule
}

type rawChannel struct {
	models.NotificationChannel `yaml:",inline"`

	RetryDelaySeconds    int `yaml:"retry_delay_seconds"`
	RetryMaxDelaySeconds int `yaml:"retry_max_delay_seconds"`
}

func (r rawChannel) convert() *models.NotificationChannel {
	channel := r.NotificationChannel
	channel.Retry.Delay = seconds(r.RetryDelaySeconds)
	channel.Retry.MaxDelay = seconds(r.RetryMaxDelaySeconds)

	return &channel
}

type rawPolicy struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Triggers    []models.Condition   `yaml:"triggers"`
	Levels      []rawEscalationLevel `yaml:"levels"`
	MaxLevel    int                  `yaml:"max_level"`
	AutoResolve []rawAutoResolve     `yaml:"auto_resolve"`
	Enabled     bool                 `yaml:"enabled"`
}

type rawEscalationLevel struct {
	Level             int                `yaml:"level"`
	Name              string             `yaml:"name"`
	DelaySeconds      int                `yaml:"delay_seconds"`
	Recipients        []models.Recipient `yaml:"recipients"`
	RequireAck        bool               `yaml:"require_ack"`
	AckTimeoutSeconds int                `yaml:"ack_timeout_seconds"`
}

type rawAutoResolve struct {
	Conditions   []models.Condition `yaml:"conditions"`
	AfterSeconds int                `yaml:"after_seconds"`
}

func (r rawPolicy) convert() *models.EscalationPolicy {
	policy := &models.EscalationPolicy{
		ID:       r.ID,
		Name:     r.Name,
		Triggers: r.Triggers,
		MaxLevel: r.MaxLevel,
		Enabled:  r.Enabled,
	}

	for _, level := range r.Levels {
		policy.Levels = append(policy.Levels, models.EscalationLevel{
			Level:      level.Level,
			Name:       level.Name,
			Delay:      seconds(level.DelaySeconds),
			Recipients: level.Recipients,
			RequireAck: level.RequireAck,
			AckTimeout: seconds(level.AckTimeoutSeconds),
		})
	}

	for _, resolve := range r.AutoResolve {
		policy.AutoResolve = append(policy.AutoResolve, models.AutoResolveCondition{
			Conditions: resolve.Conditions,
			After:      seconds(resolve.AfterSeconds),
		})
	}

	return policy
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
