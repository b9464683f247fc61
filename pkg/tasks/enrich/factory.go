package enrich

import (
	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Factory creates enrichment executors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.TaskExecutor, error) {
	return NewExecutor(config)
}

func (f *Factory) ID() string {
	return "ioc_enrich"
}

func (f *Factory) Name() string {
	return "IOC Enrichment"
}

func (f *Factory) Description() string {
	return "Enriches an indicator via an external reputation API, with an optional Redis cache in front."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"api_url": map[string]any{
				"type":        "string",
				"description": "Base URL of the enrichment API.",
			},
			"api_key": map[string]any{
				"type":        "string",
				"description": "Bearer token sent to the enrichment API.",
			},
			"redis_addr": map[string]any{
				"type":        "string",
				"description": "Redis address for the enrichment cache. Caching is disabled when empty.",
			},
			"cache_ttl_seconds": map[string]any{
				"type":        "integer",
				"description": "Cache entry lifetime in seconds.",
				"default":     3600,
			},
		},
		"required":             []string{"api_url"},
		"additionalProperties": false,
	}
}
