package httpcall

import (
	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Factory creates HTTP call executors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.TaskExecutor, error) {
	return NewExecutor(config)
}

func (f *Factory) ID() string {
	return "http_call"
}

func (f *Factory) Name() string {
	return "HTTP Call"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request to an external endpoint. URL, headers and body support {{var}} substitution against the step input."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to call. Supports templating: https://api.example.com/iocs/{{value}}.",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "Request headers. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"default": 30,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
