package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// SuppressionStore holds alert suppressions. Expired entries stop matching
// immediately; a periodic sweep removes them.
type SuppressionStore struct {
	mu           sync.RWMutex
	suppressions map[string]*models.AlertSuppression
}

func NewSuppressionStore() *SuppressionStore {
	return &SuppressionStore{
		suppressions: make(map[string]*models.AlertSuppression),
	}
}

// Create registers a suppression and returns its id, generating one when the
// rule carries none.
func (s *SuppressionStore) Create(rule *models.AlertSuppression) (string, error) {
	if len(rule.Conditions) == 0 {
		return "", fmt.Errorf("suppression requires at least one condition")
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.suppressions[rule.ID] = rule

	return rule.ID, nil
}

// Delete removes a suppression; removing an unknown id is a no-op.
func (s *SuppressionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.suppressions, id)
}

// Get returns a suppression by id.
func (s *SuppressionStore) Get(id string) (*models.AlertSuppression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.suppressions[id]

	return rule, ok
}

// List returns all stored suppressions, including expired ones not yet swept.
func (s *SuppressionStore) List() []*models.AlertSuppression {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AlertSuppression, 0, len(s.suppressions))
	for _, rule := range s.suppressions {
		out = append(out, rule)
	}

	return out
}

// Match returns the id of the first active suppression whose conditions all
// hold against data.
func (s *SuppressionStore) Match(data map[string]any, now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.suppressions {
		if !rule.Active(now) {
			continue
		}

		ok, err := models.AllMatch(rule.Conditions, data)
		if err != nil {
			continue
		}

		if ok {
			return rule.ID, true
		}
	}

	return "", false
}

// Sweep drops expired suppressions and returns how many were removed.
func (s *SuppressionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for id, rule := range s.suppressions {
		if !now.Before(rule.ExpiresAt) {
			delete(s.suppressions, id)

			removed++
		}
	}

	return removed
}
