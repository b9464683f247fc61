package notification

import (
	"sync"
	"time"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// statsTracker owns the engine-wide notification counters.
type statsTracker struct {
	mu    sync.Mutex
	stats models.NotificationStats
}

func (t *statsTracker) recordSend(status models.NotificationStatus, sentAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalSent++

	switch status {
	case models.NotificationDelivered, models.NotificationPartiallyDelivered:
		t.stats.TotalDelivered++
	case models.NotificationFailed:
		t.stats.TotalFailed++
	case models.NotificationSuppressed:
		t.stats.TotalSuppressed++
	}

	at := sentAt
	t.stats.LastSentAt = &at
}

func (t *statsTracker) recordEscalation() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.EscalationsTriggered++
}

func (t *statsTracker) snapshot() models.NotificationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats
}
