// Package file provides file-based persistence for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/nocturnelabs/vigil/pkg/persistence"
)

// Persistence implements persistence.Persistence using JSON files under a
// root directory.
type Persistence struct {
	root          string
	executions    *ExecutionRepository
	notifications *NotificationRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory ("file://" prefix allowed).
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		executions:    NewExecutionRepository(cleanRoot),
		notifications: NewNotificationRepository(cleanRoot),
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}
