package repository

import (
	"context"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
)

const preferenceColumns = `
	id, user_id, type, event_type, enabled, channels, mandatory,
	created_at, updated_at
`

func scanPreference(row pgx.Row) (*domain.NotificationPreference, error) {
	var p domain.NotificationPreference
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Type,
		&p.EventType,
		&p.Enabled,
		&p.Channels,
		&p.Mandatory,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetPreference implements Repository.
func (p *pgRepo) GetPreference(ctx context.Context, userID, ptype, eventType string) (*domain.NotificationPreference, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM notification_preferences
		WHERE user_id = $1 AND type = $2 AND event_type = $3
	`
	return scanPreference(p.db.QueryRow(ctx, query, userID, ptype, eventType))
}

// UpsertPreference implements Repository.
func (p *pgRepo) UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	query := `
		INSERT INTO notification_preferences (
			user_id, type, event_type, enabled, channels, mandatory
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, type, event_type) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    channels = EXCLUDED.channels,
		    mandatory = EXCLUDED.mandatory,
		    updated_at = NOW()
		RETURNING ` + preferenceColumns

	row := p.db.QueryRow(ctx, query,
		pref.UserID,
		pref.Type,
		pref.EventType,
		pref.Enabled,
		pref.Channels,
		pref.Mandatory,
	)
	return scanPreference(row)
}

// ListPreferencesByUser implements Repository.
func (p *pgRepo) ListPreferencesByUser(ctx context.Context, userID string) ([]*domain.NotificationPreference, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM notification_preferences
		WHERE user_id = $1
		ORDER BY type ASC, event_type ASC
	`
	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []*domain.NotificationPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prefs, nil
}

// DeletePreference implements Repository.
func (p *pgRepo) DeletePreference(ctx context.Context, userID, ptype, eventType string) error {
	query := `
		DELETE FROM notification_preferences
		WHERE user_id = $1 AND type = $2 AND event_type = $3
	`
	ct, err := p.db.Exec(ctx, query, userID, ptype, eventType)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
