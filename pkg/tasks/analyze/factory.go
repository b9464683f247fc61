package analyze

import (
	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Factory creates analysis executors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.TaskExecutor, error) {
	return NewExecutor(config)
}

func (f *Factory) ID() string {
	return "risk_analyze"
}

func (f *Factory) Name() string {
	return "Risk Analysis"
}

func (f *Factory) Description() string {
	return "Scores an indicator's risk from confidence, reputation and severity, and recommends a response action."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"confidence_weight": map[string]any{
				"type":    "number",
				"default": defaultConfidenceWeight,
			},
			"reputation_weight": map[string]any{
				"type":    "number",
				"default": defaultReputationWeight,
			},
			"severity_weight": map[string]any{
				"type":    "number",
				"default": defaultSeverityWeight,
			},
			"escalate_above": map[string]any{
				"type":        "number",
				"description": "Risk score at which the recommended action becomes escalate.",
				"default":     0.75,
			},
		},
		"additionalProperties": false,
	}
}
