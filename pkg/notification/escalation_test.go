package notification

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnelabs/vigil/pkg/models"
)

func escalationPolicy() *models.EscalationPolicy {
	oncall := []models.Recipient{{Name: "On-call", ChannelIDs: []string{"email-soc"}}}
	manager := []models.Recipient{{Name: "Manager", ChannelIDs: []string{"email-soc"}}}

	return &models.EscalationPolicy{
		ID:       "p1",
		Name:     "Standard Escalation",
		Triggers: []models.Condition{{Field: "severity", Operator: models.OperatorEquals, Value: "critical"}},
		Levels: []models.EscalationLevel{
			{Level: 1, Name: "On-call", Delay: time.Minute, Recipients: oncall, RequireAck: true, AckTimeout: 5 * time.Minute},
			{Level: 2, Name: "Manager", Delay: 2 * time.Minute, Recipients: manager},
		},
		Enabled: true,
	}
}

func TestScheduler_AdvancesThroughLevels(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan models.EscalationLevel, 4)

	scheduler := NewScheduler(testLogger(), clock, func(_ context.Context, _ string, _ *models.EscalationPolicy, level models.EscalationLevel) {
		fired <- level
	})

	scheduler.Start("n1", escalationPolicy(), map[string]any{"severity": "critical"})
	require.True(t, scheduler.Active("n1"))

	// Level 1 fires after its own delay.
	clock.Advance(time.Minute)

	select {
	case level := <-fired:
		assert.Equal(t, 1, level.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("level 1 did not fire")
	}

	// Level 2 waits for level 1's ack timeout plus its own delay.
	clock.BlockUntil(1)
	clock.Advance(7 * time.Minute)

	select {
	case level := <-fired:
		assert.Equal(t, 2, level.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("level 2 did not fire")
	}

	// The chain is exhausted after the last level.
	require.Eventually(t, func() bool {
		return !scheduler.Active("n1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_CancelStopsChain(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan models.EscalationLevel, 4)

	scheduler := NewScheduler(testLogger(), clock, func(_ context.Context, _ string, _ *models.EscalationPolicy, level models.EscalationLevel) {
		fired <- level
	})

	scheduler.Start("n1", escalationPolicy(), map[string]any{"severity": "critical"})
	scheduler.Cancel("n1")

	assert.False(t, scheduler.Active("n1"))

	clock.Advance(time.Hour)

	select {
	case <-fired:
		t.Fatal("cancelled chain fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_DuplicateStartIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan models.EscalationLevel, 4)

	scheduler := NewScheduler(testLogger(), clock, func(_ context.Context, _ string, _ *models.EscalationPolicy, level models.EscalationLevel) {
		fired <- level
	})

	policy := escalationPolicy()
	scheduler.Start("n1", policy, nil)
	scheduler.Start("n1", policy, nil)

	clock.Advance(time.Minute)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("level 1 did not fire")
	}

	select {
	case <-fired:
		t.Fatal("duplicate chain fired a second level 1")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_AutoResolveByElapsedTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan models.EscalationLevel, 4)

	policy := escalationPolicy()
	policy.AutoResolve = []models.AutoResolveCondition{
		{
			Conditions: []models.Condition{{Field: "severity", Operator: models.OperatorExists}},
			After:      30 * time.Second,
		},
	}

	scheduler := NewScheduler(testLogger(), clock, func(_ context.Context, _ string, _ *models.EscalationPolicy, level models.EscalationLevel) {
		fired <- level
	})

	scheduler.Start("n1", policy, nil)

	// The first level's delay already exceeds the auto-resolve window, so the
	// chain resolves instead of paging.
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return !scheduler.Active("n1")
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-fired:
		t.Fatal("auto-resolved chain fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_AutoResolveByConditions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan models.EscalationLevel, 4)

	policy := escalationPolicy()
	policy.AutoResolve = []models.AutoResolveCondition{
		{
			Conditions: []models.Condition{
				{Field: "resolved", Operator: models.OperatorEquals, Value: true},
			},
		},
	}

	scheduler := NewScheduler(testLogger(), clock, func(_ context.Context, _ string, _ *models.EscalationPolicy, level models.EscalationLevel) {
		fired <- level
	})

	scheduler.Start("n1", policy, map[string]any{"resolved": true})

	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return !scheduler.Active("n1")
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-fired:
		t.Fatal("auto-resolved chain fired")
	case <-time.After(100 * time.Millisecond):
	}
}
