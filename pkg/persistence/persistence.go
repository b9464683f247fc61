// Package persistence abstracts storage of execution and notification
// history.
package persistence

import (
	"context"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// ExecutionRepository stores workflow execution records. Records are
// append-only; a save after completion replaces the whole record.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context, limit int) ([]*models.WorkflowExecution, error)
}

// NotificationRepository stores sent notification records.
type NotificationRepository interface {
	SaveNotification(ctx context.Context, notification *models.SentNotification) error
	NotificationByID(ctx context.Context, id string) (*models.SentNotification, error)
	ListNotifications(ctx context.Context, limit int) ([]*models.SentNotification, error)
}

type Persistence interface {
	ExecutionRepository
	NotificationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
