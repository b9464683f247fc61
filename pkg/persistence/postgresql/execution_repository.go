package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save upserts an execution record.
func (er *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerJSON, err := json.Marshal(execution.Trigger)
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: fmt.Errorf("failed to marshal trigger data: %w", err)}
	}

	stepResultsJSON, err := json.Marshal(execution.StepResults)
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: fmt.Errorf("failed to marshal step results: %w", err)}
	}

	variablesJSON, err := json.Marshal(execution.Variables)
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: fmt.Errorf("failed to marshal variables: %w", err)}
	}

	metricsJSON, err := json.Marshal(execution.Metrics)
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: fmt.Errorf("failed to marshal metrics: %w", err)}
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, status, trigger_data, step_results,
			variables, error_message, metrics, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			status = EXCLUDED.status,
			trigger_data = EXCLUDED.trigger_data,
			step_results = EXCLUDED.step_results,
			variables = EXCLUDED.variables,
			error_message = EXCLUDED.error_message,
			metrics = EXCLUDED.metrics,
			completed_at = EXCLUDED.completed_at
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		triggerJSON,
		stepResultsJSON,
		variablesJSON,
		execution.Error,
		metricsJSON,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: err}
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, status, trigger_data, step_results,
			   variables, error_message, metrics, started_at, completed_at
		FROM executions
		WHERE id = $1
	`

	execution, err := er.scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StoreError{Op: "ExecutionByID", ID: id, Err: persistence.ErrExecutionNotFound}
		}

		return nil, &persistence.StoreError{Op: "ExecutionByID", ID: id, Err: err}
	}

	return execution, nil
}

// List retrieves the most recent executions, newest first.
func (er *ExecutionRepository) List(ctx context.Context, limit int) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, status, trigger_data, step_results,
			   variables, error_message, metrics, started_at, completed_at
		FROM executions
		ORDER BY started_at DESC
	`

	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"

		args = append(args, limit)
	}

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListExecutions", Err: err}
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, &persistence.StoreError{Op: "ListExecutions", Err: err}
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, &persistence.StoreError{Op: "ListExecutions", Err: err}
	}

	return executions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (er *ExecutionRepository) scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution       models.WorkflowExecution
		triggerJSON     []byte
		stepResultsJSON []byte
		variablesJSON   []byte
		metricsJSON     []byte
		errorMessage    sql.NullString
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&triggerJSON,
		&stepResultsJSON,
		&variablesJSON,
		&errorMessage,
		&metricsJSON,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerJSON, &execution.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := json.Unmarshal(stepResultsJSON, &execution.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}

	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &execution.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if err := json.Unmarshal(metricsJSON, &execution.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if errorMessage.Valid {
		execution.Error = errorMessage.String
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
