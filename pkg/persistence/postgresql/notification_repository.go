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

// NotificationRepository handles notification-related database operations.
type NotificationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sql.DB, logger *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// Save upserts a notification record.
func (nr *NotificationRepository) Save(ctx context.Context, notification *models.SentNotification) error {
	recipientsJSON, err := json.Marshal(notification.Recipients)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: fmt.Errorf("failed to marshal recipients: %w", err)}
	}

	channelIDsJSON, err := json.Marshal(notification.ChannelIDs)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: fmt.Errorf("failed to marshal channel ids: %w", err)}
	}

	contextJSON, err := json.Marshal(notification.Context)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: fmt.Errorf("failed to marshal context: %w", err)}
	}

	attemptsJSON, err := json.Marshal(notification.Attempts)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: fmt.Errorf("failed to marshal attempts: %w", err)}
	}

	ackJSON, err := json.Marshal(notification.Ack)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: fmt.Errorf("failed to marshal acknowledgment: %w", err)}
	}

	query := `
		INSERT INTO notifications (
			id, template_id, indicator_id, severity, recipients, channel_ids,
			context, attempts, escalation_level, ack, sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			indicator_id = EXCLUDED.indicator_id,
			severity = EXCLUDED.severity,
			recipients = EXCLUDED.recipients,
			channel_ids = EXCLUDED.channel_ids,
			context = EXCLUDED.context,
			attempts = EXCLUDED.attempts,
			escalation_level = EXCLUDED.escalation_level,
			ack = EXCLUDED.ack
	`

	_, err = nr.db.ExecContext(ctx, query,
		notification.ID,
		notification.TemplateID,
		notification.IndicatorID,
		notification.Severity,
		recipientsJSON,
		channelIDsJSON,
		contextJSON,
		attemptsJSON,
		notification.EscalationLevel,
		ackJSON,
		notification.SentAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: err}
	}

	return nil
}

// GetByID retrieves a notification by its ID.
func (nr *NotificationRepository) GetByID(ctx context.Context, id string) (*models.SentNotification, error) {
	query := `
		SELECT id, template_id, indicator_id, severity, recipients, channel_ids,
			   context, attempts, escalation_level, ack, sent_at
		FROM notifications
		WHERE id = $1
	`

	notification, err := nr.scanNotification(nr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StoreError{Op: "NotificationByID", ID: id, Err: persistence.ErrNotificationNotFound}
		}

		return nil, &persistence.StoreError{Op: "NotificationByID", ID: id, Err: err}
	}

	return notification, nil
}

// List retrieves the most recent notifications, newest first.
func (nr *NotificationRepository) List(ctx context.Context, limit int) ([]*models.SentNotification, error) {
	query := `
		SELECT id, template_id, indicator_id, severity, recipients, channel_ids,
			   context, attempts, escalation_level, ack, sent_at
		FROM notifications
		ORDER BY sent_at DESC
	`

	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"

		args = append(args, limit)
	}

	rows, err := nr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListNotifications", Err: err}
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			nr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var notifications []*models.SentNotification

	for rows.Next() {
		notification, err := nr.scanNotification(rows)
		if err != nil {
			return nil, &persistence.StoreError{Op: "ListNotifications", Err: err}
		}

		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		return nil, &persistence.StoreError{Op: "ListNotifications", Err: err}
	}

	return notifications, nil
}

func (nr *NotificationRepository) scanNotification(row rowScanner) (*models.SentNotification, error) {
	var (
		notification   models.SentNotification
		indicatorID    sql.NullString
		recipientsJSON []byte
		channelIDsJSON []byte
		contextJSON    []byte
		attemptsJSON   []byte
		ackJSON        []byte
	)

	err := row.Scan(
		&notification.ID,
		&notification.TemplateID,
		&indicatorID,
		&notification.Severity,
		&recipientsJSON,
		&channelIDsJSON,
		&contextJSON,
		&attemptsJSON,
		&notification.EscalationLevel,
		&ackJSON,
		&notification.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if indicatorID.Valid {
		notification.IndicatorID = indicatorID.String
	}

	if err := json.Unmarshal(recipientsJSON, &notification.Recipients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}

	if err := json.Unmarshal(channelIDsJSON, &notification.ChannelIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel ids: %w", err)
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &notification.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	if err := json.Unmarshal(attemptsJSON, &notification.Attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
	}

	if err := json.Unmarshal(ackJSON, &notification.Ack); err != nil {
		return nil, fmt.Errorf("failed to unmarshal acknowledgment: %w", err)
	}

	return &notification, nil
}
