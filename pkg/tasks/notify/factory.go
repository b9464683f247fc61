package notify

import (
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Factory creates notify executors bound to a notification engine.
type Factory struct {
	engine *notification.Engine
}

func NewFactory(engine *notification.Engine) *Factory {
	return &Factory{engine: engine}
}

func (f *Factory) Create(config map[string]any) (protocol.TaskExecutor, error) {
	return NewExecutor(f.engine, config)
}

func (f *Factory) ID() string {
	return "notify"
}

func (f *Factory) Name() string {
	return "Send Notification"
}

func (f *Factory) Description() string {
	return "Sends a threat notification to configured recipients through the notification engine."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"severity": map[string]any{
				"type":    "string",
				"enum":    []string{"critical", "high", "medium", "low", "info"},
				"default": "medium",
			},
			"alert_type": map[string]any{
				"type":        "string",
				"description": "Alert type label shown to recipients.",
			},
			"recipients": map[string]any{
				"type":        "array",
				"description": "Recipients with their channel bindings.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"contact":     map[string]any{"type": "string"},
						"channel_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"name", "channel_ids"},
				},
			},
		},
		"required":             []string{"recipients"},
		"additionalProperties": false,
	}
}
