package registry

import (
	"fmt"
	"log/slog"

	"github.com/nocturnelabs/vigil/pkg/protocol"
)

// Registry aggregates task definitions, workflow definitions and executor
// factories behind one handle, constructed once at startup and passed to the
// engines.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.TaskExecutorFactory
	tasks     *TaskRegistry
	workflows *WorkflowRegistry
}

func NewRegistry(logger *slog.Logger) *Registry {
	tasks := NewTaskRegistry()

	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.TaskExecutorFactory),
		tasks:     tasks,
		workflows: NewWorkflowRegistry(tasks),
	}
}

func (r *Registry) Tasks() *TaskRegistry { return r.tasks }

func (r *Registry) Workflows() *WorkflowRegistry { return r.workflows }

// RegisterExecutor makes an executor factory available under its type id.
func (r *Registry) RegisterExecutor(factory protocol.TaskExecutorFactory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("registered task executor", "type", factory.ID(), "name", factory.Name())
}

// CreateExecutor builds an executor instance for the given type.
func (r *Registry) CreateExecutor(executorType string, config map[string]any) (protocol.TaskExecutor, error) {
	factory, ok := r.factories[executorType]
	if !ok {
		return nil, fmt.Errorf("executor type %q not registered", executorType)
	}

	return factory.Create(config)
}

// ExecutorTypes returns the registered executor type ids.
func (r *Registry) ExecutorTypes() []string {
	types := make([]string, 0, len(r.factories))
	for id := range r.factories {
		types = append(types, id)
	}

	return types
}

// HealthCheck reports whether the registry is usable.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "no task executors registered", false
	}

	return fmt.Sprintf("%d executor types, %d tasks, %d workflows",
		len(r.factories), len(r.tasks.List()), len(r.workflows.List())), true
}
