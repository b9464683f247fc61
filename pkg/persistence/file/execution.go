package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/nocturnelabs/vigil/pkg/persistence"
)

const dirPerm = 0o755

// ExecutionRepository stores executions as JSON files under
// <root>/executions.
type ExecutionRepository struct {
	root string
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir() string {
	return path.Join(r.root, "executions")
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executions.save(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return p.executions.byID(ctx, id)
}

func (p *Persistence) ListExecutions(ctx context.Context, limit int) ([]*models.WorkflowExecution, error) {
	return p.executions.list(ctx, limit)
}

func (r *ExecutionRepository) save(_ context.Context, execution *models.WorkflowExecution) error {
	if err := os.MkdirAll(r.dir(), dirPerm); err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: err}
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: err}
	}

	filename := path.Join(r.dir(), execution.ID+".json")
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return &persistence.StoreError{Op: "SaveExecution", ID: execution.ID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) byID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	data, err := os.ReadFile(path.Join(r.dir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.StoreError{Op: "ExecutionByID", ID: id, Err: persistence.ErrExecutionNotFound}
		}

		return nil, &persistence.StoreError{Op: "ExecutionByID", ID: id, Err: err}
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, &persistence.StoreError{Op: "ExecutionByID", ID: id, Err: fmt.Errorf("corrupt record: %w", err)}
	}

	return &execution, nil
}

func (r *ExecutionRepository) list(ctx context.Context, limit int) ([]*models.WorkflowExecution, error) {
	root := os.DirFS(r.dir())

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListExecutions", Err: err}
	}

	executions := make([]*models.WorkflowExecution, 0, len(files))

	for _, file := range files {
		execution, err := r.byID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
