package validate

import (
	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Factory creates validation executors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.TaskExecutor, error) {
	return NewExecutor(config)
}

func (f *Factory) ID() string {
	return "ioc_validate"
}

func (f *Factory) Name() string {
	return "IOC Validation"
}

func (f *Factory) Description() string {
	return "Validates that an indicator value is well formed for its declared type (ip, domain, url, hash, email)."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"strict": map[string]any{
				"type":        "boolean",
				"description": "Fail validation for unknown indicator types instead of passing them through.",
				"default":     false,
			},
		},
		"additionalProperties": false,
	}
}
