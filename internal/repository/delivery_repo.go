package repository

import (
	"context"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `
	id, notification_id, user_id, channel, recipient, status,
	attempt_count, last_error, external_id, sent_at, delivered_at,
	failed_at, created_at
`

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID,
		&d.NotificationID,
		&d.UserID,
		&d.Channel,
		&d.Recipient,
		&d.Status,
		&d.AttemptCount,
		&d.LastError,
		&d.ExternalID,
		&d.SentAt,
		&d.DeliveredAt,
		&d.FailedAt,
		&d.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// CreateDelivery implements Repository.
func (p *pgRepo) CreateDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
	if d.Status == "" {
		d.Status = domain.DeliveryPending
	}
	query := `
		INSERT INTO notification_deliveries (
			notification_id, user_id, channel, recipient, status, attempt_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + deliveryColumns

	row := p.db.QueryRow(ctx, query,
		d.NotificationID,
		d.UserID,
		d.Channel,
		d.Recipient,
		d.Status,
		d.AttemptCount,
	)
	return scanDelivery(row)
}

// GetDeliveryByID implements Repository.
func (p *pgRepo) GetDeliveryByID(ctx context.Context, id int64) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM notification_deliveries WHERE id = $1`
	return scanDelivery(p.db.QueryRow(ctx, query, id))
}

// MarkDeliveryProcessing implements Repository.
func (p *pgRepo) MarkDeliveryProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1,
		    sent_at = COALESCE(sent_at, NOW())
		WHERE id = $2
	`
	return p.execDelivery(ctx, query, domain.DeliveryProcessing, id)
}

// MarkDeliveryDelivered implements Repository.
func (p *pgRepo) MarkDeliveryDelivered(ctx context.Context, id int64, externalID *string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1,
		    external_id = COALESCE($2, external_id),
		    delivered_at = NOW(),
		    last_error = NULL
		WHERE id = $3
	`
	return p.execDelivery(ctx, query, domain.DeliveryDelivered, externalID, id)
}

// MarkDeliveryFailed implements Repository.
func (p *pgRepo) MarkDeliveryFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1,
		    last_error = $2,
		    failed_at = NOW()
		WHERE id = $3
	`
	return p.execDelivery(ctx, query, domain.DeliveryFailed, errMsg, id)
}

// MarkDeliveryRetrying implements Repository. Attempt count increments here,
// once per retry scheduling, never anywhere else.
func (p *pgRepo) MarkDeliveryRetrying(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1,
		    last_error = $2,
		    attempt_count = attempt_count + 1
		WHERE id = $3
	`
	return p.execDelivery(ctx, query, domain.DeliveryRetrying, lastError, id)
}

func (p *pgRepo) execDelivery(ctx context.Context, query string, args ...interface{}) error {
	ct, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ListDeliveriesByNotification implements Repository.
func (p *pgRepo) ListDeliveriesByNotification(ctx context.Context, notificationID int64) ([]*domain.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM notification_deliveries
		WHERE notification_id = $1
		ORDER BY created_at ASC
	`
	rows, err := p.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deliveries, nil
}

// CountDeliveriesByStatus implements Repository.
func (p *pgRepo) CountDeliveriesByStatus(ctx context.Context, notificationID int64) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM notification_deliveries
		WHERE notification_id = $1
		GROUP BY status
	`
	rows, err := p.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// ListStuckDeliveries implements Repository. Used by the redelivery worker to
// pick up PROCESSING rows whose transport never reported back, plus FAILED
// rows that never reached the broker and still have retries left.
func (p *pgRepo) ListStuckDeliveries(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM notification_deliveries
		WHERE (status = $1 AND sent_at < NOW() - $3::interval)
		   OR (status = $2 AND attempt_count < $4 AND failed_at < NOW() - $3::interval)
		ORDER BY created_at ASC
		LIMIT $5
	`
	rows, err := p.db.Query(ctx, query,
		domain.DeliveryProcessing, domain.DeliveryFailed,
		olderThan.String(), domain.MaxDeliveryRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deliveries, nil
}
