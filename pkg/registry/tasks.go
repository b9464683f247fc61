// Package registry holds the registered task definitions, workflow
// definitions and executor factories shared by the engines.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/nocturnelabs/vigil/pkg/models"
)

var (
	// ErrTaskSchemaConflict indicates a re-registration with an incompatible
	// input or output schema.
	ErrTaskSchemaConflict = errors.New("task already registered with incompatible schema")

	// ErrTaskNotFound indicates a task id that is not registered.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskRegistry stores immutable task definitions. Registration happens at
// system initialization; lookups may proceed concurrently.
type TaskRegistry struct {
	mu       sync.RWMutex
	tasks    map[string]*models.TaskDefinition
	validate *validator.Validate
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks:    make(map[string]*models.TaskDefinition),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register adds a task definition. Registering the same id again succeeds
// only when the declared schemas are identical; an incompatible schema is
// rejected.
func (r *TaskRegistry) Register(def *models.TaskDefinition) error {
	if err := r.validate.Struct(def); err != nil {
		return fmt.Errorf("invalid task definition: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tasks[def.ID]
	if ok {
		if !existing.InputSchema.Equal(def.InputSchema) || !existing.OutputSchema.Equal(def.OutputSchema) {
			return fmt.Errorf("task %q: %w", def.ID, ErrTaskSchemaConflict)
		}

		return nil
	}

	r.tasks[def.ID] = def

	return nil
}

// Get returns the task definition with the given id.
func (r *TaskRegistry) Get(id string) (*models.TaskDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tasks[id]

	return def, ok
}

// List returns all registered task definitions.
func (r *TaskRegistry) List() []*models.TaskDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*models.TaskDefinition, 0, len(r.tasks))
	for _, def := range r.tasks {
		defs = append(defs, def)
	}

	return defs
}
