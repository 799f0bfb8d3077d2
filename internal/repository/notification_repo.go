package repository

import (
	"context"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `
	id, request_id, user_id, type, config_key, priority, title, body,
	channel_hint, entity_type, entity_id, payload, metadata, status,
	visible_in_app, read_at, sent_at, scheduled_at, created_at
`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RequestID,
		&n.UserID,
		&n.Type,
		&n.ConfigKey,
		&n.Priority,
		&n.Title,
		&n.Body,
		&n.ChannelHint,
		&n.EntityType,
		&n.EntityID,
		&n.Payload,
		&n.Metadata,
		&n.Status,
		&n.VisibleInApp,
		&n.ReadAt,
		&n.SentAt,
		&n.ScheduledAt,
		&n.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CreateNotification implements Repository.
func (p *pgRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.RequestID == "" {
		n.RequestID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = domain.NotificationPending
	}

	query := `
		INSERT INTO notifications (
			request_id, user_id, type, config_key, priority, title, body,
			channel_hint, entity_type, entity_id, payload, metadata, status,
			visible_in_app, scheduled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15
		)
		RETURNING ` + notificationColumns

	row := p.db.QueryRow(ctx, query,
		n.RequestID,
		n.UserID,
		n.Type,
		n.ConfigKey,
		n.Priority,
		n.Title,
		n.Body,
		n.ChannelHint,
		n.EntityType,
		n.EntityID,
		n.Payload,
		n.Metadata,
		n.Status,
		n.VisibleInApp,
		n.ScheduledAt,
	)
	return scanNotification(row)
}

// GetNotificationByID implements Repository.
func (p *pgRepo) GetNotificationByID(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(p.db.QueryRow(ctx, query, id))
}

// ListNotificationsByUser implements Repository.
func (p *pgRepo) ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return p.listNotifications(ctx, query, userID, limit, offset)
}

// ListUnreadNotifications implements Repository.
func (p *pgRepo) ListUnreadNotifications(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		  AND visible_in_app = true
		  AND read_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return p.listNotifications(ctx, query, userID, limit, offset)
}

func (p *pgRepo) listNotifications(ctx context.Context, query string, args ...interface{}) ([]*domain.Notification, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notifications, nil
}

// CountUnreadNotifications implements Repository.
func (p *pgRepo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1
		  AND visible_in_app = true
		  AND read_at IS NULL
	`
	var count int
	if err := p.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkNotificationAsRead implements Repository.
func (p *pgRepo) MarkNotificationAsRead(ctx context.Context, id int64, userID string) error {
	query := `
		UPDATE notifications
		SET read_at = NOW()
		WHERE id = $1
		  AND user_id = $2
		  AND read_at IS NULL
	`
	ct, err := p.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// HideNotification implements Repository.
func (p *pgRepo) HideNotification(ctx context.Context, id int64, userID string) error {
	query := `
		UPDATE notifications
		SET visible_in_app = false
		WHERE id = $1
		  AND user_id = $2
		  AND visible_in_app = true
	`
	ct, err := p.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateNotificationStatus implements Repository.
func (p *pgRepo) UpdateNotificationStatus(ctx context.Context, id int64, status string, sentAt *time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1,
		    sent_at = COALESCE($2, sent_at)
		WHERE id = $3
	`
	ct, err := p.db.Exec(ctx, query, status, sentAt, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// RescheduleNotification implements Repository.
func (p *pgRepo) RescheduleNotification(ctx context.Context, id int64, scheduledAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1,
		    scheduled_at = $2
		WHERE id = $3
	`
	ct, err := p.db.Exec(ctx, query, domain.NotificationScheduled, scheduledAt, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
