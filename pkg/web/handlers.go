// Package web provides the HTTP API over the workflow, automation and
// notification engines.
package web

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/nocturnelabs/vigil/pkg/automation"
	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/workflow"
)

const defaultListLimit = 50

type APIHandlers struct {
	registry   *registry.Registry
	executor   *workflow.Engine
	automation *automation.Engine
	notifier   *notification.Engine
	store      persistence.Persistence
	validator  *validator.Validate
}

func NewAPIHandlers(
	reg *registry.Registry,
	executor *workflow.Engine,
	auto *automation.Engine,
	notifier *notification.Engine,
	store persistence.Persistence,
) *APIHandlers {
	return &APIHandlers{
		registry:   reg,
		executor:   executor,
		automation: auto,
		notifier:   notifier,
		store:      store,
		validator:  validator.New(),
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/workflows", h.GetWorkflows)
	app.Get("/workflows/:id", h.GetWorkflow)
	app.Post("/workflows/:id/execute", h.ExecuteWorkflow)

	app.Get("/executions", h.GetExecutions)
	app.Get("/executions/:id", h.GetExecution)

	app.Post("/events", h.PostEvent)
	app.Get("/rules", h.GetRules)

	app.Post("/notifications", h.SendNotification)
	app.Get("/notifications", h.GetNotifications)
	app.Get("/notifications/:id", h.GetNotification)
	app.Post("/notifications/:id/ack", h.AcknowledgeNotification)

	app.Get("/suppressions", h.GetSuppressions)
	app.Post("/suppressions", h.CreateSuppression)
	app.Delete("/suppressions/:id", h.DeleteSuppression)

	app.Get("/channels", h.GetChannels)
	app.Get("/statistics", h.GetStatistics)
	app.Get("/health", h.GetHealth)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"workflows": h.registry.Workflows().List()})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, found := h.registry.Workflows().Get(c.Params("id"))
	if !found {
		return notFound(c, "workflow not found")
	}

	return c.JSON(wf)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executor.Execute(c.Context(), c.Params("id"), models.TriggerData{
		EventType: req.EventType,
		Payload:   req.Payload,
		Timestamp: time.Now().UTC(),
		Source:    req.Source,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	var status models.ExecutionStatus

	if s := c.Query("status"); s != "" {
		status, err = models.ParseExecutionStatus(s)
		if err != nil {
			return badRequest(c, "Invalid status: "+err.Error())
		}
	}

	executions, err := h.store.ListExecutions(c.Context(), limit)
	if err != nil {
		return handleEngineError(c, err)
	}

	if status != "" {
		filtered := executions[:0]

		for _, execution := range executions {
			if execution.Status == status {
				filtered = append(filtered, execution)
			}
		}

		executions = filtered
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.store.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(execution)
}

// PostEvent feeds an event to trigger matching and the automation rules and
// reports everything it set in motion.
func (h *APIHandlers) PostEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	response := EventResponse{
		EventType:  req.EventType,
		ReceivedAt: time.Now().UTC(),
	}

	matched, err := h.registry.Workflows().MatchTrigger(req.EventType, req.Payload)
	if err != nil {
		return handleEngineError(c, err)
	}

	for _, wf := range matched {
		execution, err := h.executor.Execute(c.Context(), wf.ID, models.TriggerData{
			EventType: req.EventType,
			Payload:   req.Payload,
			Timestamp: response.ReceivedAt,
			Source:    req.Source,
		})
		if err != nil {
			return handleEngineError(c, err)
		}

		response.Executions = append(response.Executions, execution)
	}

	response.AutomationResults = h.automation.ProcessEvent(c.Context(), req.EventType, req.Payload)

	return c.JSON(response)
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"rules": h.automation.Rules()})
}

func (h *APIHandlers) SendNotification(c fiber.Ctx) error {
	var data models.ThreatNotificationData
	if err := c.Bind().JSON(&data); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if data.DetectedAt.IsZero() {
		data.DetectedAt = time.Now().UTC()
	}

	result, err := h.notifier.SendThreatNotification(c.Context(), &data)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetNotifications(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	notifications, err := h.store.ListNotifications(c.Context(), limit)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"notifications": notifications})
}

func (h *APIHandlers) GetNotification(c fiber.Ctx) error {
	record, err := h.store.NotificationByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) AcknowledgeNotification(c fiber.Ctx) error {
	var req AcknowledgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.notifier.Acknowledge(c.Context(), c.Params("id"), req.Actor); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetSuppressions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"suppressions": h.notifier.Suppressions()})
}

func (h *APIHandlers) CreateSuppression(c fiber.Ctx) error {
	var req SuppressionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	id, err := h.notifier.CreateSuppression(&models.AlertSuppression{
		Name:       req.Name,
		Conditions: req.Conditions,
		ExpiresAt:  time.Now().UTC().Add(time.Duration(req.DurationMinutes) * time.Minute),
		Enabled:    true,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *APIHandlers) DeleteSuppression(c fiber.Ctx) error {
	h.notifier.DeleteSuppression(c.Params("id"))

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetChannels(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"channels": h.notifier.Channels()})
}

func (h *APIHandlers) GetStatistics(c fiber.Ctx) error {
	return c.JSON(StatisticsResponse{
		WorkflowTotals: h.executor.Stats().Total(),
		Workflows:      h.executor.Stats().ByWorkflow(),
		Notifications:  h.notifier.Stats(),
	})
}

func (h *APIHandlers) GetHealth(c fiber.Ctx) error {
	registryStatus, registryOK := h.registry.HealthCheck()

	storeStatus := "ok"
	storeOK := true

	if err := h.store.HealthCheck(c.Context()); err != nil {
		storeStatus = err.Error()
		storeOK = false
	}

	status := fiber.StatusOK
	if !registryOK || !storeOK {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"registry":    registryStatus,
		"persistence": storeStatus,
	})
}

func parseLimit(c fiber.Ctx) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultListLimit, nil
	}

	return strconv.Atoi(limitStr)
}
