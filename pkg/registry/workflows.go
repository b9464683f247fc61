package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nocturnelabs/vigil/pkg/models"
)

var (
	// ErrWorkflowNotFound indicates a workflow id that is not registered.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrUnknownTask indicates a step references a task id the task registry
	// does not hold.
	ErrUnknownTask = errors.New("step references unknown task")

	// ErrUnknownDependency indicates a step depends on a step id not declared
	// in the same workflow.
	ErrUnknownDependency = errors.New("step depends on unknown step")

	// ErrDependencyCycle indicates the step dependency graph is not acyclic.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrDuplicateStep indicates two steps share an id.
	ErrDuplicateStep = errors.New("duplicate step id")
)

// WorkflowRegistry stores workflow definitions, validated against the task
// registry at registration time.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	tasks     *TaskRegistry
	validate  *validator.Validate
}

func NewWorkflowRegistry(tasks *TaskRegistry) *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make(map[string]*models.Workflow),
		tasks:     tasks,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register validates and stores a workflow: every step's task id must
// resolve, every dependency must name a declared step, and the dependency
// graph must be acyclic.
func (r *WorkflowRegistry) Register(workflow *models.Workflow) error {
	if err := r.validate.Struct(workflow); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	stepIDs := make(map[string]bool, len(workflow.Steps))

	for _, step := range workflow.Steps {
		if stepIDs[step.ID] {
			return fmt.Errorf("workflow %q step %q: %w", workflow.ID, step.ID, ErrDuplicateStep)
		}

		stepIDs[step.ID] = true

		if _, ok := r.tasks.Get(step.TaskID); !ok {
			return fmt.Errorf("workflow %q step %q task %q: %w",
				workflow.ID, step.ID, step.TaskID, ErrUnknownTask)
		}

		if step.ErrorHandling.OnFailure == models.OnFailureFallback && step.ErrorHandling.FallbackTaskID != "" {
			if _, ok := r.tasks.Get(step.ErrorHandling.FallbackTaskID); !ok {
				return fmt.Errorf("workflow %q step %q fallback task %q: %w",
					workflow.ID, step.ID, step.ErrorHandling.FallbackTaskID, ErrUnknownTask)
			}
		}
	}

	for _, step := range workflow.Steps {
		for _, dep := range step.Dependencies {
			if !stepIDs[dep] {
				return fmt.Errorf("workflow %q step %q dependency %q: %w",
					workflow.ID, step.ID, dep, ErrUnknownDependency)
			}
		}
	}

	if err := checkAcyclic(workflow.Steps); err != nil {
		return fmt.Errorf("workflow %q: %w", workflow.ID, err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.ID] = workflow

	return nil
}

// Get returns the workflow with the given id.
func (r *WorkflowRegistry) Get(id string) (*models.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]

	return workflow, ok
}

// List returns all registered workflows.
func (r *WorkflowRegistry) List() []*models.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.workflows))
	for _, workflow := range r.workflows {
		workflows = append(workflows, workflow)
	}

	return workflows
}

// MatchTrigger returns enabled workflows whose trigger conditions accept the
// event.
func (r *WorkflowRegistry) MatchTrigger(eventType string, payload map[string]any) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.Workflow

	for _, workflow := range r.workflows {
		if !workflow.Enabled {
			continue
		}

		ok, err := workflow.MatchesTrigger(eventType, payload)
		if err != nil {
			return nil, fmt.Errorf("workflow %q trigger match: %w", workflow.ID, err)
		}

		if ok {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

// checkAcyclic runs Kahn's algorithm over the step dependency graph.
func checkAcyclic(steps []*models.WorkflowStep) error {
	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))

	for _, step := range steps {
		inDegree[step.ID] = len(step.Dependencies)
		for _, dep := range step.Dependencies {
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	queue := make([]string, 0, len(steps))

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	resolved := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		resolved++

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if resolved != len(steps) {
		return ErrDependencyCycle
	}

	return nil
}
