package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nocturnelabs/vigil/pkg/models"
)

const defaultRetryDelay = 2 * time.Second

// Dispatcher performs rate-limited, retried deliveries and tracks per-channel
// health from the observed outcomes.
type Dispatcher struct {
	logger     *slog.Logger
	transports map[models.ChannelType]Transport
	limiter    RateLimiter
	clock      clockwork.Clock

	mu     sync.Mutex
	gauges map[string]*channelGauge
}

type channelGauge struct {
	attempts  int64
	failures  int64
	latencyMs int64
}

func NewDispatcher(logger *slog.Logger, transports map[models.ChannelType]Transport, limiter RateLimiter, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		logger:     logger.With("module", "notification_dispatcher"),
		transports: transports,
		limiter:    limiter,
		clock:      clock,
		gauges:     make(map[string]*channelGauge),
	}
}

// Deliver renders no content itself; it pushes an already rendered message
// through the channel's transport, retrying per the channel's policy. The
// returned attempt is recorded regardless of outcome and never nil.
func (d *Dispatcher) Deliver(ctx context.Context, channel *models.NotificationChannel, recipient models.Recipient, message Message) *models.DeliveryAttempt {
	attempt := &models.DeliveryAttempt{
		ID:          uuid.New().String(),
		ChannelID:   channel.ID,
		ChannelType: channel.Type,
		Recipient:   recipient.Name,
		AttemptedAt: d.clock.Now().UTC(),
	}

	if !channel.Enabled {
		attempt.Status = models.DeliverySkipped
		attempt.Error = "channel disabled"

		return d.finish(ctx, attempt)
	}

	allowed, err := d.limiter.Allow(ctx, channel.ID, channel.RateLimit)
	if err != nil {
		d.logger.WarnContext(ctx, "Rate limiter unavailable, allowing delivery",
			"channel_id", channel.ID, "error", err)
	} else if !allowed {
		attempt.Status = models.DeliveryRateLimited
		attempt.Error = "channel rate limit exceeded"

		return d.finish(ctx, attempt)
	}

	transport, ok := d.transports[channel.Type]
	if !ok {
		attempt.Status = models.DeliveryFailed
		attempt.Error = fmt.Sprintf("no transport for channel type %q", channel.Type)

		return d.finish(ctx, attempt)
	}

	attempts := channel.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := channel.Retry.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var lastErr error

	for try := 1; try <= attempts; try++ {
		if try > 1 {
			attempt.Retries++

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()

				attempt.Status = models.DeliveryFailed
				attempt.Error = lastErr.Error()

				return d.finish(ctx, attempt)
			case <-d.clock.After(delay):
			}

			if channel.Retry.ExponentialBackoff {
				delay *= 2
				if channel.Retry.MaxDelay > 0 && delay > channel.Retry.MaxDelay {
					delay = channel.Retry.MaxDelay
				}
			}
		}

		lastErr = transport.Send(ctx, channel, recipient, message)
		if lastErr == nil {
			attempt.Status = models.DeliveryDelivered

			return d.finish(ctx, attempt)
		}

		d.logger.WarnContext(ctx, "Delivery attempt failed",
			"channel_id", channel.ID, "recipient", recipient.Name,
			"try", try, "error", lastErr)
	}

	attempt.Status = models.DeliveryFailed
	attempt.Error = lastErr.Error()

	return d.finish(ctx, attempt)
}

func (d *Dispatcher) finish(ctx context.Context, attempt *models.DeliveryAttempt) *models.DeliveryAttempt {
	completedAt := d.clock.Now().UTC()
	attempt.CompletedAt = &completedAt

	d.record(attempt, completedAt)

	d.logger.InfoContext(ctx, "Delivery finished",
		"channel_id", attempt.ChannelID,
		"recipient", attempt.Recipient,
		"status", attempt.Status,
		"retries", attempt.Retries)

	return attempt
}

// record folds delivered and failed attempts into the channel gauge. Skipped
// and rate-limited attempts say nothing about transport health.
func (d *Dispatcher) record(attempt *models.DeliveryAttempt, completedAt time.Time) {
	if attempt.Status != models.DeliveryDelivered && attempt.Status != models.DeliveryFailed {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	gauge, ok := d.gauges[attempt.ChannelID]
	if !ok {
		gauge = &channelGauge{}
		d.gauges[attempt.ChannelID] = gauge
	}

	gauge.attempts++
	gauge.latencyMs += completedAt.Sub(attempt.AttemptedAt).Milliseconds()

	if attempt.Status == models.DeliveryFailed {
		gauge.failures++
	}
}

// Health derives a channel health snapshot from recorded attempts. Error
// rate above 50% is unhealthy, above 10% degraded.
func (d *Dispatcher) Health(channelID string) models.ChannelHealth {
	d.mu.Lock()
	defer d.mu.Unlock()

	health := models.ChannelHealth{
		Status:    models.ChannelHealthy,
		LastCheck: d.clock.Now().UTC(),
	}

	gauge, ok := d.gauges[channelID]
	if !ok || gauge.attempts == 0 {
		return health
	}

	health.ErrorRate = float64(gauge.failures) / float64(gauge.attempts)
	health.AvgLatencyMs = gauge.latencyMs / gauge.attempts

	switch {
	case health.ErrorRate > 0.5:
		health.Status = models.ChannelUnhealthy
	case health.ErrorRate > 0.1:
		health.Status = models.ChannelDegraded
	}

	return health
}
