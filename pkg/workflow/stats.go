package workflow

import (
	"sync"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// WorkflowStats is a per-workflow execution summary.
type WorkflowStats struct {
	WorkflowID     string  `json:"workflow_id"`
	Executions     int64   `json:"executions"`
	Completed      int64   `json:"completed"`
	Failed         int64   `json:"failed"`
	MeanDurationMs float64 `json:"mean_duration_ms"`
}

// Stats accumulates execution counts and a running mean duration, overall
// and per workflow.
type Stats struct {
	mu sync.Mutex

	total    WorkflowStats
	workflow map[string]*WorkflowStats
}

func NewStats() *Stats {
	return &Stats{
		workflow: make(map[string]*WorkflowStats),
	}
}

// Record folds one finished execution into the aggregates. Only terminal
// statuses are outcomes; anything else is ignored.
func (s *Stats) Record(workflowID string, status models.ExecutionStatus, durationMs int64) {
	if !status.IsTerminal() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.record(status, durationMs)

	entry, ok := s.workflow[workflowID]
	if !ok {
		entry = &WorkflowStats{WorkflowID: workflowID}
		s.workflow[workflowID] = entry
	}

	entry.record(status, durationMs)
}

func (w *WorkflowStats) record(status models.ExecutionStatus, durationMs int64) {
	w.Executions++

	switch status {
	case models.ExecutionCompleted:
		w.Completed++
	case models.ExecutionFailed:
		w.Failed++
	}

	// Running mean: old*(n-1)/n + new/n, stable for long-lived processes.
	n := float64(w.Executions)
	w.MeanDurationMs = w.MeanDurationMs*(n-1)/n + float64(durationMs)/n
}

// Total returns the overall aggregate.
func (s *Stats) Total() WorkflowStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

// ByWorkflow returns per-workflow aggregates keyed by workflow id.
func (s *Stats) ByWorkflow() map[string]WorkflowStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]WorkflowStats, len(s.workflow))
	for id, entry := range s.workflow {
		out[id] = *entry
	}

	return out
}
