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

// NotificationRepository stores sent notifications as JSON files under
// <root>/notifications.
type NotificationRepository struct {
	root string
}

func NewNotificationRepository(root string) *NotificationRepository {
	return &NotificationRepository{root: root}
}

func (r *NotificationRepository) dir() string {
	return path.Join(r.root, "notifications")
}

func (p *Persistence) SaveNotification(ctx context.Context, notification *models.SentNotification) error {
	return p.notifications.save(ctx, notification)
}

func (p *Persistence) NotificationByID(ctx context.Context, id string) (*models.SentNotification, error) {
	return p.notifications.byID(ctx, id)
}

func (p *Persistence) ListNotifications(ctx context.Context, limit int) ([]*models.SentNotification, error) {
	return p.notifications.list(ctx, limit)
}

func (r *NotificationRepository) save(_ context.Context, notification *models.SentNotification) error {
	if err := os.MkdirAll(r.dir(), dirPerm); err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: err}
	}

	data, err := json.MarshalIndent(notification, "", "  ")
	if err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: err}
	}

	filename := path.Join(r.dir(), notification.ID+".json")
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return &persistence.StoreError{Op: "SaveNotification", ID: notification.ID, Err: err}
	}

	return nil
}

func (r *NotificationRepository) byID(_ context.Context, id string) (*models.SentNotification, error) {
	data, err := os.ReadFile(path.Join(r.dir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.StoreError{Op: "NotificationByID", ID: id, Err: persistence.ErrNotificationNotFound}
		}

		return nil, &persistence.StoreError{Op: "NotificationByID", ID: id, Err: err}
	}

	var notification models.SentNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, &persistence.StoreError{Op: "NotificationByID", ID: id, Err: fmt.Errorf("corrupt record: %w", err)}
	}

	return &notification, nil
}

func (r *NotificationRepository) list(ctx context.Context, limit int) ([]*models.SentNotification, error) {
	root := os.DirFS(r.dir())

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, &persistence.StoreError{Op: "ListNotifications", Err: err}
	}

	notifications := make([]*models.SentNotification, 0, len(files))

	for _, file := range files {
		notification, err := r.byID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, notification)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].SentAt.After(notifications[j].SentAt)
	})

	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}

	return notifications, nil
}
