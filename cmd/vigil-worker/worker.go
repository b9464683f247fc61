package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nocturnelabs/vigil/pkg/automation"
	"github.com/nocturnelabs/vigil/pkg/eventbus"
	"github.com/nocturnelabs/vigil/pkg/events"
	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/otelhelper"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

// Worker consumes trigger events from the bus and fans them out to the
// workflow executor and the automation engine.
type Worker struct {
	id         string
	logger     *slog.Logger
	registry   *registry.Registry
	executor   *workflow.Engine
	automation *automation.Engine
	eventBus   eventbus.EventBus
	tracer     trace.Tracer
}

func NewWorker(
	id string,
	logger *slog.Logger,
	reg *registry.Registry,
	executor *workflow.Engine,
	auto *automation.Engine,
	eventBus eventbus.EventBus,
) *Worker {
	return &Worker{
		id:         id,
		logger:     logger.With("module", "vigil-worker"),
		registry:   reg,
		executor:   executor,
		automation: auto,
		eventBus:   eventBus,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker subscriptions")

	tracer, err := otelhelper.NewTracer(ctx, "vigil-worker")
	if err != nil {
		return err
	}

	w.tracer = tracer

	if err := w.eventBus.Handle(events.TriggerReceivedEvent, w.handleTriggerReceived); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleTriggerReceived(ctx context.Context, event any) error {
	trigger, ok := event.(*events.TriggerReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TriggerReceived")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "handle_trigger_received",
		attribute.String(otelhelper.EventIDKey, trigger.ID),
	)
	defer span.End()

	logger := w.logger.With(
		"event_type", trigger.EventType,
		"event_id", trigger.ID,
	)
	logger.InfoContext(ctx, "Processing trigger event")

	payload := trigger.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	matched, err := w.registry.Workflows().MatchTrigger(trigger.EventType, payload)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to match workflows for trigger", "error", err)

		return err
	}

	data := models.TriggerData{
		EventType: trigger.EventType,
		Payload:   payload,
		Timestamp: trigger.Timestamp,
		Source:    trigger.Source,
	}

	for _, wf := range matched {
		execution, err := w.executor.Execute(ctx, wf.ID, data)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowIDKey, wf.ID))
			logger.ErrorContext(ctx, "Failed to execute workflow", "workflow_id", wf.ID, "error", err)

			continue
		}

		logger.InfoContext(ctx, "Workflow execution finished",
			"workflow_id", wf.ID,
			"execution_id", execution.ID,
			"status", execution.Status,
		)
	}

	results := w.automation.ProcessEvent(ctx, trigger.EventType, payload)
	for _, result := range results {
		logger.InfoContext(ctx, "Automation rule processed",
			"rule_id", result.RuleID,
			"action", result.ActionKind,
			"status", result.Status,
		)
	}

	return nil
}
