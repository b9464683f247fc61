// Package analyze implements the risk analysis task: it folds indicator
// confidence, reputation and severity into a single risk score.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
)

// Default weights for the score components. Overridable per task
// configuration.
const (
	defaultConfidenceWeight = 0.4
	defaultReputationWeight = 0.4
	defaultSeverityWeight   = 0.2
)

var severityScores = map[string]float64{
	"critical": 1.0,
	"high":     0.8,
	"medium":   0.5,
	"low":      0.25,
	"info":     0.1,
}

// Executor scores one indicator per invocation.
type Executor struct {
	confidenceWeight float64
	reputationWeight float64
	severityWeight   float64
	escalateAbove    float64
}

func NewExecutor(config map[string]any) (*Executor, error) {
	executor := &Executor{
		confidenceWeight: weight(config, "confidence_weight", defaultConfidenceWeight),
		reputationWeight: weight(config, "reputation_weight", defaultReputationWeight),
		severityWeight:   weight(config, "severity_weight", defaultSeverityWeight),
		escalateAbove:    weight(config, "escalate_above", 0.75),
	}

	total := executor.confidenceWeight + executor.reputationWeight + executor.severityWeight
	if total <= 0 {
		return nil, fmt.Errorf("analysis weights sum to zero")
	}

	return executor, nil
}

func weight(config map[string]any, key string, fallback float64) float64 {
	if value, ok := config[key].(float64); ok {
		return value
	}

	return fallback
}

// Execute computes risk_score in [0,1], a coarse risk_level and a
// recommended_action from the input's confidence, reputation_score and
// severity fields. Missing components contribute zero.
func (e *Executor) Execute(_ context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	confidence := clamp(numeric(input["confidence"]))
	reputation := clamp(numeric(input["reputation_score"]))

	severity, _ := input["severity"].(string)
	severityScore := severityScores[severity]

	total := e.confidenceWeight + e.reputationWeight + e.severityWeight
	score := (confidence*e.confidenceWeight + reputation*e.reputationWeight + severityScore*e.severityWeight) / total

	level := "low"
	action := "monitor"

	switch {
	case score >= e.escalateAbove:
		level = "critical"
		action = "escalate"
	case score >= 0.5:
		level = "high"
		action = "investigate"
	case score >= 0.25:
		level = "medium"
		action = "triage"
	}

	logger.Debug("Indicator analyzed", "risk_score", score, "risk_level", level)

	return map[string]any{
		"risk_score":         score,
		"risk_level":         level,
		"recommended_action": action,
	}, nil
}

func numeric(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func clamp(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
