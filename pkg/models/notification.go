package models

import (
	"fmt"
	"time"
)

// Severity ranks threat notifications. Critical and High select the critical
// alert template; everything else the informational one.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// ChannelType identifies the transport behind a notification channel.
type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelSlack     ChannelType = "slack"
	ChannelSMS       ChannelType = "sms"
	ChannelWebhook   ChannelType = "webhook"
	ChannelPagerDuty ChannelType = "pagerduty"
)

func ParseChannelType(s string) (ChannelType, error) {
	switch ChannelType(s) {
	case ChannelEmail, ChannelSlack, ChannelSMS, ChannelWebhook, ChannelPagerDuty:
		return ChannelType(s), nil
	default:
		return "", fmt.Errorf("unknown channel type %q", s)
	}
}

// RateLimit bounds deliveries through a channel.
type RateLimit struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour"   yaml:"per_hour"`
	Burst     int `json:"burst"      yaml:"burst"`
}

// NotificationRetryPolicy bounds delivery re-attempts per channel.
type NotificationRetryPolicy struct {
	MaxAttempts        int           `json:"max_attempts"        yaml:"max_attempts"`
	Delay              time.Duration `json:"delay"               yaml:"-"`
	MaxDelay           time.Duration `json:"max_delay"           yaml:"-"`
	ExponentialBackoff bool          `json:"exponential_backoff" yaml:"exponential_backoff"`
}

// ChannelHealthStatus summarizes a channel's observed delivery health.
type ChannelHealthStatus string

const (
	ChannelHealthy   ChannelHealthStatus = "healthy"
	ChannelDegraded  ChannelHealthStatus = "degraded"
	ChannelUnhealthy ChannelHealthStatus = "unhealthy"
)

// ChannelHealth is a snapshot derived from recent delivery attempts.
type ChannelHealth struct {
	Status       ChannelHealthStatus `json:"status"`
	LastCheck    time.Time           `json:"last_check"`
	ErrorRate    float64             `json:"error_rate"`
	AvgLatencyMs int64               `json:"avg_latency_ms"`
}

// NotificationChannel is a configured delivery destination.
type NotificationChannel struct {
	ID        string                  `json:"id"       yaml:"id"   validate:"required"`
	Name      string                  `json:"name"     yaml:"name" validate:"required"`
	Type      ChannelType             `json:"type"     yaml:"type" validate:"required"`
	Settings  map[string]string       `json:"settings,omitempty" yaml:"settings,omitempty"`
	RateLimit RateLimit               `json:"rate_limit" yaml:"rate_limit"`
	Retry     NotificationRetryPolicy `json:"retry"      yaml:"retry"`
	Enabled   bool                    `json:"enabled"    yaml:"enabled"`
	Health    ChannelHealth           `json:"health"     yaml:"-"`
}

// MessageTemplate is one channel-type-specific rendering of a notification.
type MessageTemplate struct {
	Subject     string   `json:"subject"               yaml:"subject"`
	Body        string   `json:"body"                  yaml:"body" validate:"required"`
	Format      string   `json:"format,omitempty"      yaml:"format,omitempty"`
	Attachments []string `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// TemplateVariable declares a variable a template may reference.
type TemplateVariable struct {
	Name        string `json:"name"        yaml:"name" validate:"required"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required"    yaml:"required"`
}

// NotificationTemplate groups per-channel-type message templates for one
// severity band.
type NotificationTemplate struct {
	ID        string                          `json:"id"        yaml:"id"   validate:"required"`
	Name      string                          `json:"name"      yaml:"name" validate:"required"`
	Severity  Severity                        `json:"severity"  yaml:"severity"`
	Channels  map[ChannelType]MessageTemplate `json:"channels"  yaml:"channels" validate:"required,min=1"`
	Variables []TemplateVariable              `json:"variables" yaml:"variables"`
}

// Recipient is a notification destination with its channel bindings.
type Recipient struct {
	Name       string   `json:"name"        yaml:"name" validate:"required"`
	Contact    string   `json:"contact"     yaml:"contact"`
	ChannelIDs []string `json:"channel_ids" yaml:"channel_ids" validate:"required,min=1"`
}

// EscalationLevel is one stage in an escalation chain. Level N+1 only
// activates after level N's acknowledgment timeout elapses unacknowledged.
type EscalationLevel struct {
	Level      int           `json:"level"       yaml:"level" validate:"min=1"`
	Name       string        `json:"name"        yaml:"name"`
	Delay      time.Duration `json:"delay"       yaml:"-"`
	Recipients []Recipient   `json:"recipients"  yaml:"recipients" validate:"required,min=1"`
	RequireAck bool          `json:"require_ack" yaml:"require_ack"`
	AckTimeout time.Duration `json:"ack_timeout" yaml:"-"`
}

// AutoResolveCondition stops further escalation when it matches: either the
// given field conditions hold against the notification context, or After has
// elapsed since the chain started.
type AutoResolveCondition struct {
	Conditions []Condition   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	After      time.Duration `json:"after,omitempty"      yaml:"-"`
}

// EscalationPolicy drives severity-based escalation chains.
type EscalationPolicy struct {
	ID          string                 `json:"id"       yaml:"id"   validate:"required"`
	Name        string                 `json:"name"     yaml:"name" validate:"required"`
	Triggers    []Condition            `json:"triggers" yaml:"triggers" validate:"required,min=1"`
	Levels      []EscalationLevel      `json:"levels"   yaml:"levels"   validate:"required,min=1"`
	MaxLevel    int                    `json:"max_level"    yaml:"max_level"`
	AutoResolve []AutoResolveCondition `json:"auto_resolve,omitempty" yaml:"auto_resolve,omitempty"`
	Enabled     bool                   `json:"enabled" yaml:"enabled"`
}

// AlertSuppression silently drops matching notifications until it expires.
// ALL conditions must match to suppress.
type AlertSuppression struct {
	ID         string      `json:"id"         yaml:"id"`
	Name       string      `json:"name"       yaml:"name"`
	Conditions []Condition `json:"conditions" yaml:"conditions" validate:"required,min=1"`
	ExpiresAt  time.Time   `json:"expires_at" yaml:"expires_at"`
	Enabled    bool        `json:"enabled"    yaml:"enabled"`
	CreatedBy  string      `json:"created_by" yaml:"created_by"`
}

// Active reports whether the suppression may still match at the given time.
func (s *AlertSuppression) Active(now time.Time) bool {
	return s.Enabled && now.Before(s.ExpiresAt)
}

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered   DeliveryStatus = "delivered"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliveryRateLimited DeliveryStatus = "rate_limited"
	DeliverySkipped     DeliveryStatus = "skipped"
)

// DeliveryAttempt records one recipient/channel delivery regardless of
// outcome.
type DeliveryAttempt struct {
	ID          string         `json:"id"`
	ChannelID   string         `json:"channel_id"`
	ChannelType ChannelType    `json:"channel_type"`
	Recipient   string         `json:"recipient"`
	Status      DeliveryStatus `json:"status"`
	AttemptedAt time.Time      `json:"attempted_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
}

// Acknowledgment is settable exactly once on a sent notification.
type Acknowledgment struct {
	Acknowledged bool       `json:"acknowledged"`
	At           *time.Time `json:"acknowledged_at,omitempty"`
	By           string     `json:"acknowledged_by,omitempty"`
}

// SentNotification is the immutable record of a notification send, except for
// its acknowledgment fields.
type SentNotification struct {
	ID              string             `json:"id"`
	TemplateID      string             `json:"template_id"`
	IndicatorID     string             `json:"indicator_id,omitempty"`
	Severity        Severity           `json:"severity"`
	Recipients      []Recipient        `json:"recipients"`
	ChannelIDs      []string           `json:"channel_ids"`
	SentAt          time.Time          `json:"sent_at"`
	Context         map[string]any     `json:"context,omitempty"`
	Attempts        []*DeliveryAttempt `json:"attempts"`
	EscalationLevel int                `json:"escalation_level"`
	Ack             Acknowledgment     `json:"ack"`
}

// Indicator is the observable that triggered a threat notification.
type Indicator struct {
	ID         string   `json:"id"         yaml:"id"`
	Type       string   `json:"type"       yaml:"type" validate:"required"`
	Value      string   `json:"value"      yaml:"value" validate:"required"`
	Confidence float64  `json:"confidence" yaml:"confidence" validate:"min=0,max=1"`
	Severity   Severity `json:"severity"   yaml:"severity"`
	Source     string   `json:"source"     yaml:"source"`
}

// ThreatNotificationData is the input to the notification engine.
type ThreatNotificationData struct {
	Indicator       Indicator   `json:"indicator" validate:"required"`
	Severity        Severity    `json:"severity"  validate:"required"`
	DetectedAt      time.Time   `json:"detected_at"`
	AlertType       string      `json:"alert_type" validate:"required"`
	Recipients      []Recipient `json:"recipients" validate:"required,min=1,dive"`
	IncidentID      string      `json:"incident_id,omitempty"`
	BusinessImpact  string      `json:"business_impact,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

// NotificationStatus is the aggregate outcome of a send.
type NotificationStatus string

const (
	NotificationDelivered          NotificationStatus = "delivered"
	NotificationPartiallyDelivered NotificationStatus = "partially_delivered"
	NotificationFailed             NotificationStatus = "failed"
	NotificationSuppressed         NotificationStatus = "suppressed"
)

// NotificationResult is returned to the caller for every send, including
// suppressed and failed ones.
type NotificationResult struct {
	NotificationID      string             `json:"notification_id,omitempty"`
	Status              NotificationStatus `json:"status"`
	Attempts            []*DeliveryAttempt `json:"attempts"`
	EscalationTriggered bool               `json:"escalation_triggered"`
	EscalationPolicyID  string             `json:"escalation_policy_id,omitempty"`
	SuppressedBy        string             `json:"suppressed_by,omitempty"`
	SentAt              time.Time          `json:"sent_at"`
}

// NotificationStats aggregates engine-wide delivery counters.
type NotificationStats struct {
	TotalSent            int64      `json:"total_sent"`
	TotalDelivered       int64      `json:"total_delivered"`
	TotalFailed          int64      `json:"total_failed"`
	TotalSuppressed      int64      `json:"total_suppressed"`
	EscalationsTriggered int64      `json:"escalations_triggered"`
	LastSentAt           *time.Time `json:"last_sent_at,omitempty"`
}
