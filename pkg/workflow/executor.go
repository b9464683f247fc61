// Package workflow runs registered workflows against their trigger data,
// honoring step dependencies, guard conditions and failure policies.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nocturnelabs/vigil/pkg/eventbus"
	"github.com/nocturnelabs/vigil/pkg/events"
	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/template"
)

var (
	// ErrWorkflowDisabled indicates an execution request for a disabled
	// workflow.
	ErrWorkflowDisabled = errors.New("workflow is disabled")

	// ErrExecutionTimeout indicates the workflow-level deadline elapsed
	// before all steps finished.
	ErrExecutionTimeout = errors.New("workflow execution timed out")
)

// Engine executes workflows. It is safe for concurrent use; each execution
// owns its own context data.
type Engine struct {
	logger    *slog.Logger
	registry  *registry.Registry
	store     persistence.ExecutionRepository
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
	stats     *Stats
}

// NewEngine creates a workflow engine. The publisher may be nil when no
// event bus is wired; the store may be nil for dry runs.
func NewEngine(
	logger *slog.Logger,
	reg *registry.Registry,
	store persistence.ExecutionRepository,
	publisher eventbus.EventPublisher,
) *Engine {
	return &Engine{
		logger:    logger.With("module", "workflow_engine"),
		registry:  reg,
		store:     store,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		stats:     NewStats(),
	}
}

// WithClock replaces the engine clock. Used by tests to control retry
// backoff.
func (e *Engine) WithClock(clock clockwork.Clock) *Engine {
	e.clock = clock

	return e
}

// Stats exposes the engine's accumulated execution statistics.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Execute runs the workflow identified by workflowID to completion and
// returns the finished execution record. The returned error reflects engine
// failures (unknown workflow, disabled workflow); a workflow whose steps
// failed returns a nil error with Status set to ExecutionFailed.
func (e *Engine) Execute(ctx context.Context, workflowID string, trigger models.TriggerData) (*models.WorkflowExecution, error) {
	workflow, found := e.registry.Workflows().Get(workflowID)
	if !found {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, registry.ErrWorkflowNotFound)
	}

	if !workflow.Enabled {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, ErrWorkflowDisabled)
	}

	execution := &models.WorkflowExecution{
		ID:          generateExecutionID(),
		WorkflowID:  workflowID,
		Status:      models.ExecutionRunning,
		Trigger:     trigger,
		StepResults: make(map[string]*models.StepResult),
		Variables:   make(map[string]any),
		StartedAt:   e.clock.Now().UTC(),
	}

	logger := e.logger.With("workflow_id", workflowID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "Starting workflow execution", "steps", len(workflow.Steps))

	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent),
		ExecutionID:  execution.ID,
		WorkflowID:   workflowID,
		WorkflowName: workflow.Name,
		Trigger:      trigger,
	})

	if workflow.Config.MaxExecutionTime > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, workflow.Config.MaxExecutionTime)
		defer cancel()
	}

	run := &executionRun{
		engine:    e,
		logger:    logger,
		workflow:  workflow,
		execution: execution,
		data: map[string]any{
			"trigger": map[string]any{
				"event_type": trigger.EventType,
				"payload":    trigger.Payload,
				"source":     trigger.Source,
			},
			"steps": map[string]any{},
			"vars":  map[string]any{},
		},
	}

	run.walk(ctx)
	e.finalize(ctx, logger, workflow, run)

	return execution, nil
}

// executionRun is the per-execution working state.
type executionRun struct {
	engine    *Engine
	logger    *slog.Logger
	workflow  *models.Workflow
	execution *models.WorkflowExecution
	data      map[string]any

	fatalErr    error
	hardFailure bool
}

// walk dispatches steps in dependency order. Declared order is not trusted;
// passes repeat until no step can make progress.
func (r *executionRun) walk(ctx context.Context) {
	remaining := make([]*models.WorkflowStep, len(r.workflow.Steps))
	copy(remaining, r.workflow.Steps)

	for len(remaining) > 0 && r.fatalErr == nil {
		progressed := false
		next := remaining[:0]

		for _, step := range remaining {
			// Executors may ignore their context; the workflow deadline is
			// enforced here between dispatches.
			if r.fatalErr == nil && ctx.Err() != nil {
				r.fatalErr = fmt.Errorf("%w: %w", ErrExecutionTimeout, ctx.Err())
			}

			if r.fatalErr != nil {
				next = append(next, step)

				continue
			}

			switch {
			case r.execution.DependenciesCompleted(step.Dependencies):
				r.runStep(ctx, step)

				progressed = true
			case r.dependenciesSettled(step.Dependencies):
				// A dependency failed or was skipped; this step can never run.
				r.skipStep(step, "dependency not satisfied")

				progressed = true
			default:
				next = append(next, step)
			}
		}

		remaining = next

		if !progressed {
			break
		}
	}

	// Steps left unvisited after a fatal failure or stall are skipped.
	for _, step := range remaining {
		if _, done := r.execution.StepResults[step.ID]; !done {
			r.skipStep(step, "execution aborted")
		}
	}
}

// dependenciesSettled reports whether every dependency has a terminal result,
// successful or not.
func (r *executionRun) dependenciesSettled(dependencies []string) bool {
	for _, dep := range dependencies {
		if _, ok := r.execution.StepResults[dep]; !ok {
			return false
		}
	}

	return true
}

func (r *executionRun) skipStep(step *models.WorkflowStep, reason string) {
	now := r.engine.clock.Now().UTC()

	r.execution.StepResults[step.ID] = &models.StepResult{
		StepID:      step.ID,
		TaskID:      step.TaskID,
		Status:      models.StepSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Error:       reason,
	}

	r.logger.Info("Step skipped", "step_id", step.ID, "reason", reason)
}

func (r *executionRun) runStep(ctx context.Context, step *models.WorkflowStep) {
	logger := r.logger.With("step_id", step.ID, "task_id", step.TaskID)

	if len(step.Conditions) > 0 {
		matched, err := models.AllMatch(step.Conditions, r.data)
		if err != nil {
			r.failStep(step, time.Time{}, fmt.Errorf("guard evaluation: %w", err))

			return
		}

		if !matched {
			r.skipStep(step, "guard conditions not met")

			return
		}
	}

	def, found := r.engine.registry.Tasks().Get(step.TaskID)
	if !found {
		r.failStep(step, time.Time{}, fmt.Errorf("task %q: %w", step.TaskID, registry.ErrTaskNotFound))

		return
	}

	input, err := r.resolveInput(step)
	if err != nil {
		r.failStep(step, time.Time{}, err)

		return
	}

	r.applyNotificationDefaults(def, input)

	startedAt := r.engine.clock.Now().UTC()

	logger.InfoContext(ctx, "Executing step")

	output, err := r.executeWithRetry(ctx, step, def, input, logger)
	if err != nil {
		output, err = r.applyFailurePolicy(ctx, step, input, logger, err)
	}

	if err != nil {
		r.failStep(step, startedAt, err)

		return
	}

	completedAt := r.engine.clock.Now().UTC()

	r.execution.StepResults[step.ID] = &models.StepResult{
		StepID:      step.ID,
		TaskID:      step.TaskID,
		Status:      models.StepCompleted,
		Input:       input,
		Output:      output,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}

	r.data["steps"].(map[string]any)[step.ID] = output
	r.applyOutputMapping(step, output)

	logger.InfoContext(ctx, "Step completed", "duration", completedAt.Sub(startedAt))
}

// resolveInput builds the step's input from its mapping expressions over the
// accumulated context data.
func (r *executionRun) resolveInput(step *models.WorkflowStep) (map[string]any, error) {
	input := make(map[string]any, len(step.InputMapping))

	for field, expr := range step.InputMapping {
		value, err := template.ResolveExpr(expr, r.data)
		if err != nil {
			return nil, fmt.Errorf("step %q input %q: %w", step.ID, field, err)
		}

		input[field] = value
	}

	return input, nil
}

// applyNotificationDefaults merges workflow-level notification settings into
// notification steps whose input does not set its own.
func (r *executionRun) applyNotificationDefaults(def *models.TaskDefinition, input map[string]any) {
	if def.Category != models.TaskCategoryNotification {
		return
	}

	if _, set := input["recipients"]; !set && len(r.workflow.Config.NotificationRecipients) > 0 {
		recipients := make([]any, 0, len(r.workflow.Config.NotificationRecipients))

		for _, channelID := range r.workflow.Config.NotificationRecipients {
			recipients = append(recipients, map[string]any{
				"name":        channelID,
				"channel_ids": []any{channelID},
			})
		}

		input["recipients"] = recipients
	}

	if _, set := input["escalation_rules"]; !set && len(r.workflow.Config.EscalationRules) > 0 {
		input["escalation_rules"] = r.workflow.Config.EscalationRules
	}
}

func (r *executionRun) applyOutputMapping(step *models.WorkflowStep, output map[string]any) {
	vars := r.data["vars"].(map[string]any)

	for name, field := range step.OutputMapping {
		if value, found := models.LookupPath(output, field); found {
			vars[name] = value
			r.execution.Variables[name] = value
		}
	}
}

// executeWithRetry validates the input and runs the task, retrying per the
// task's retry policy when the step or workflow opted in.
func (r *executionRun) executeWithRetry(
	ctx context.Context,
	step *models.WorkflowStep,
	def *models.TaskDefinition,
	input map[string]any,
	logger *slog.Logger,
) (map[string]any, error) {
	if err := registry.ValidateInput(def, input); err != nil {
		return nil, err
	}

	attempts := 1
	if step.ErrorHandling.OnFailure == models.OnFailureRetry || r.workflow.Config.AutoRetry {
		if def.Retry.MaxAttempts > attempts {
			attempts = def.Retry.MaxAttempts
		}
	}

	delay := def.Retry.Delay

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.WarnContext(ctx, "Retrying step", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrExecutionTimeout, ctx.Err())
			case <-r.engine.clock.After(delay):
			}

			if def.Retry.ExponentialBackoff {
				delay *= 2
			}
		}

		output, err := r.executeTask(ctx, def, input, logger)
		if err == nil {
			return output, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecutionTimeout, ctx.Err())
		}
	}

	return nil, lastErr
}

// executeTask runs one attempt of the task under its declared timeout. The
// tighter of the task timeout and the workflow deadline applies.
func (r *executionRun) executeTask(
	ctx context.Context,
	def *models.TaskDefinition,
	input map[string]any,
	logger *slog.Logger,
) (map[string]any, error) {
	executor, err := r.engine.registry.CreateExecutor(def.Type, def.Configuration)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", def.ID, err)
	}

	if def.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	output, err := executor.Execute(ctx, input, logger)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", def.ID, err)
	}

	return output, nil
}

// applyFailurePolicy handles a step's terminal failure per its declared
// error handling. A nil error return means the failure was absorbed.
func (r *executionRun) applyFailurePolicy(
	ctx context.Context,
	step *models.WorkflowStep,
	input map[string]any,
	logger *slog.Logger,
	cause error,
) (map[string]any, error) {
	if step.ErrorHandling.OnFailure == models.OnFailureFallback && step.ErrorHandling.FallbackTaskID != "" {
		fallback, found := r.engine.registry.Tasks().Get(step.ErrorHandling.FallbackTaskID)
		if !found {
			return nil, fmt.Errorf("fallback task %q: %w", step.ErrorHandling.FallbackTaskID, registry.ErrTaskNotFound)
		}

		logger.WarnContext(ctx, "Step failed, running fallback task",
			"fallback_task_id", fallback.ID, "error", cause)

		output, err := r.executeTask(ctx, fallback, input, logger)
		if err != nil {
			return nil, fmt.Errorf("fallback after %w: %w", cause, err)
		}

		return output, nil
	}

	return nil, cause
}

// failStep records a failed step result and decides whether the failure is
// fatal for the rest of the execution.
func (r *executionRun) failStep(step *models.WorkflowStep, startedAt time.Time, cause error) {
	now := r.engine.clock.Now().UTC()
	if startedAt.IsZero() {
		startedAt = now
	}

	r.execution.StepResults[step.ID] = &models.StepResult{
		StepID:      step.ID,
		TaskID:      step.TaskID,
		Status:      models.StepFailed,
		StartedAt:   startedAt,
		CompletedAt: now,
		Duration:    now.Sub(startedAt),
		Error:       cause.Error(),
	}

	r.logger.Error("Step failed", "step_id", step.ID, "error", cause)

	// Continue-policy failures are recorded but never fail the execution.
	if step.ErrorHandling.ContinueOnError || step.ErrorHandling.OnFailure == models.OnFailureContinue {
		return
	}

	r.hardFailure = true

	// Parallel workflows keep running independent branches; the failure only
	// blocks transitive dependents. Everything else aborts.
	if r.workflow.Kind == models.WorkflowParallel {
		if r.execution.Error == "" {
			r.execution.Error = fmt.Sprintf("step %s: %v", step.ID, cause)
		}

		return
	}

	r.fatalErr = fmt.Errorf("step %s: %w", step.ID, cause)
}

// finalize computes metrics, resolves the terminal status, records stats,
// persists the record and publishes the terminal event.
func (e *Engine) finalize(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, run *executionRun) {
	execution := run.execution
	completedAt := e.clock.Now().UTC()
	execution.CompletedAt = &completedAt

	metrics := models.ExecutionMetrics{
		TotalSteps: len(workflow.Steps),
		DurationMs: completedAt.Sub(execution.StartedAt).Milliseconds(),
	}

	for _, result := range execution.StepResults {
		switch result.Status {
		case models.StepCompleted:
			metrics.CompletedSteps++
		case models.StepFailed:
			metrics.FailedSteps++
		case models.StepSkipped:
			metrics.SkippedSteps++
		}
	}

	execution.Metrics = metrics

	status := models.ExecutionCompleted

	switch {
	case run.fatalErr != nil:
		status = models.ExecutionFailed
		execution.Error = run.fatalErr.Error()
	case run.hardFailure:
		status = models.ExecutionFailed

		if execution.Error == "" {
			execution.Error = "one or more steps failed"
		}
	}

	// running -> completed | failed; the lifecycle never moves backwards.
	if execution.Status.CanTransitionTo(status) {
		execution.Status = status
	}

	e.stats.Record(workflow.ID, execution.Status, metrics.DurationMs)

	if e.store != nil {
		if err := e.store.SaveExecution(ctx, execution); err != nil {
			logger.ErrorContext(ctx, "Failed to persist execution", "error", err)
		}
	}

	if execution.Status == models.ExecutionCompleted {
		e.publish(ctx, execution.ID, events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent),
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			Status:      execution.Status,
			Metrics:     metrics,
		})
	} else {
		e.publish(ctx, execution.ID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent),
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			Error:       execution.Error,
			Metrics:     metrics,
		})
	}

	logger.InfoContext(ctx, "Workflow execution finished",
		"status", execution.Status,
		"completed_steps", metrics.CompletedSteps,
		"failed_steps", metrics.FailedSteps,
		"skipped_steps", metrics.SkippedSteps,
		"duration_ms", metrics.DurationMs)
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func generateExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}
