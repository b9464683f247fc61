// Package protocol defines the contracts between the execution engine and
// pluggable task executors.
package protocol

import (
	"context"
	"log/slog"
)

// TaskExecutor performs one unit of work against resolved input data. The
// input map is the step's resolved input mapping; the returned map is merged
// into the execution context under the step's id.
type TaskExecutor interface {
	Execute(ctx context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error)
}

// TaskExecutorFactory creates executor instances and describes the executor
// type to the registry.
type TaskExecutorFactory interface {
	// Create builds an executor from task-level configuration.
	Create(config map[string]any) (TaskExecutor, error)

	// ID returns the unique executor type identifier.
	ID() string

	// Name returns the human-readable executor name.
	Name() string

	// Description returns what this executor does.
	Description() string

	// Schema returns the JSON schema for the executor's configuration.
	Schema() map[string]any
}
