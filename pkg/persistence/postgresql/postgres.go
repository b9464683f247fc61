// Package postgresql provides PostgreSQL persistence for executions and
// notifications.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db               *sql.DB
	logger           *slog.Logger
	executionRepo    *ExecutionRepository
	notificationRepo *NotificationRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:               database,
		logger:           logger,
		executionRepo:    NewExecutionRepository(database, logger),
		notificationRepo: NewNotificationRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Save(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) ListExecutions(ctx context.Context, limit int) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.List(ctx, limit)
}

func (p *Persistence) SaveNotification(ctx context.Context, notification *models.SentNotification) error {
	return p.notificationRepo.Save(ctx, notification)
}

func (p *Persistence) NotificationByID(ctx context.Context, id string) (*models.SentNotification, error) {
	return p.notificationRepo.GetByID(ctx, id)
}

func (p *Persistence) ListNotifications(ctx context.Context, limit int) ([]*models.SentNotification, error) {
	return p.notificationRepo.List(ctx, limit)
}
