package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// EscalateFunc delivers one escalation level. It is invoked outside the
// scheduler lock and may block on network I/O.
type EscalateFunc func(ctx context.Context, notificationID string, policy *models.EscalationPolicy, level models.EscalationLevel)

// Scheduler drives delayed escalation chains, one per notification id. A
// chain advances level by level on the clock and stops on acknowledgment,
// auto-resolve, or exhaustion of the policy's levels.
type Scheduler struct {
	logger *slog.Logger
	clock  clockwork.Clock
	fire   EscalateFunc

	mu     sync.Mutex
	chains map[string]*escalationChain
}

type escalationChain struct {
	notificationID string
	policy         *models.EscalationPolicy
	data           map[string]any
	startedAt      time.Time
	levelIdx       int
	timer          clockwork.Timer
	cancelled      bool
}

func NewScheduler(logger *slog.Logger, clock clockwork.Clock, fire EscalateFunc) *Scheduler {
	return &Scheduler{
		logger: logger.With("module", "escalation_scheduler"),
		clock:  clock,
		fire:   fire,
		chains: make(map[string]*escalationChain),
	}
}

// Start begins an escalation chain for the notification. Level 1 fires after
// its declared delay; a zero delay fires it on the next clock tick. Starting
// a chain for an id that already has one is a no-op.
func (s *Scheduler) Start(notificationID string, policy *models.EscalationPolicy, data map[string]any) {
	if len(policy.Levels) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chains[notificationID]; exists {
		return
	}

	chain := &escalationChain{
		notificationID: notificationID,
		policy:         policy,
		data:           data,
		startedAt:      s.clock.Now(),
	}

	s.chains[notificationID] = chain
	s.scheduleLocked(chain, policy.Levels[0].Delay)

	s.logger.Info("Escalation chain started",
		"notification_id", notificationID,
		"policy_id", policy.ID,
		"first_delay", policy.Levels[0].Delay)
}

// Cancel stops the chain for a notification, typically on acknowledgment.
// Cancelling an unknown id is a no-op.
func (s *Scheduler) Cancel(notificationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[notificationID]
	if !ok {
		return
	}

	chain.cancelled = true

	if chain.timer != nil {
		chain.timer.Stop()
	}

	delete(s.chains, notificationID)

	s.logger.Info("Escalation chain cancelled", "notification_id", notificationID)
}

// Active reports whether a chain is still pending for the notification.
func (s *Scheduler) Active(notificationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.chains[notificationID]

	return ok
}

func (s *Scheduler) scheduleLocked(chain *escalationChain, delay time.Duration) {
	chain.timer = s.clock.AfterFunc(delay, func() {
		s.advance(chain)
	})
}

// advance fires the chain's current level and schedules the next one. The
// fire callback runs without the scheduler lock held.
func (s *Scheduler) advance(chain *escalationChain) {
	s.mu.Lock()

	if chain.cancelled {
		s.mu.Unlock()

		return
	}

	policy := chain.policy
	level := policy.Levels[chain.levelIdx]

	if s.resolvedLocked(chain) {
		delete(s.chains, chain.notificationID)
		s.mu.Unlock()

		s.logger.Info("Escalation chain auto-resolved",
			"notification_id", chain.notificationID, "policy_id", policy.ID)

		return
	}

	s.mu.Unlock()

	s.fire(context.Background(), chain.notificationID, policy, level)

	s.mu.Lock()
	defer s.mu.Unlock()

	if chain.cancelled {
		return
	}

	chain.levelIdx++

	if chain.levelIdx >= len(policy.Levels) || (policy.MaxLevel > 0 && policy.Levels[chain.levelIdx].Level > policy.MaxLevel) {
		delete(s.chains, chain.notificationID)

		s.logger.Info("Escalation chain exhausted",
			"notification_id", chain.notificationID, "policy_id", policy.ID)

		return
	}

	// The next level waits out the acknowledgment window of the level just
	// fired, plus its own delay.
	delay := policy.Levels[chain.levelIdx].Delay
	if level.RequireAck && level.AckTimeout > 0 {
		delay += level.AckTimeout
	}

	s.scheduleLocked(chain, delay)
}

// resolvedLocked checks the policy's auto-resolve conditions against the
// chain's context and elapsed time.
func (s *Scheduler) resolvedLocked(chain *escalationChain) bool {
	elapsed := s.clock.Now().Sub(chain.startedAt)

	for _, cond := range chain.policy.AutoResolve {
		if cond.After > 0 && elapsed >= cond.After {
			return true
		}

		if len(cond.Conditions) > 0 {
			if ok, err := models.AllMatch(cond.Conditions, chain.data); err == nil && ok {
				return true
			}
		}
	}

	return false
}
