package repository

import (
	"context"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
)

const configColumns = `
	id, key, type, event_type, default_channels, mandatory_channels,
	priority, enabled, respect_work_hours, max_per_day,
	dedup_window_minutes, templates, target_rule, metadata,
	created_at, updated_at
`

func scanConfig(row pgx.Row) (*domain.NotificationConfig, error) {
	var c domain.NotificationConfig
	err := row.Scan(
		&c.ID,
		&c.Key,
		&c.Type,
		&c.EventType,
		&c.DefaultChannels,
		&c.MandatoryChannels,
		&c.Priority,
		&c.Enabled,
		&c.RespectWorkHours,
		&c.MaxPerDay,
		&c.DedupWindowMinutes,
		&c.Templates,
		&c.Target,
		&c.Metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetConfigByKey implements Repository.
func (p *pgRepo) GetConfigByKey(ctx context.Context, key string) (*domain.NotificationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM notification_configs WHERE key = $1`
	return scanConfig(p.db.QueryRow(ctx, query, key))
}

// CreateConfig implements Repository.
func (p *pgRepo) CreateConfig(ctx context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	query := `
		INSERT INTO notification_configs (
			key, type, event_type, default_channels, mandatory_channels,
			priority, enabled, respect_work_hours, max_per_day,
			dedup_window_minutes, templates, target_rule, metadata
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)
		RETURNING ` + configColumns

	row := p.db.QueryRow(ctx, query,
		c.Key,
		c.Type,
		c.EventType,
		c.DefaultChannels,
		c.MandatoryChannels,
		c.Priority,
		c.Enabled,
		c.RespectWorkHours,
		c.MaxPerDay,
		c.DedupWindowMinutes,
		c.Templates,
		c.Target,
		c.Metadata,
	)
	return scanConfig(row)
}

// UpdateConfig implements Repository.
func (p *pgRepo) UpdateConfig(ctx context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	query := `
		UPDATE notification_configs
		SET type = $2,
		    event_type = $3,
		    default_channels = $4,
		    mandatory_channels = $5,
		    priority = $6,
		    enabled = $7,
		    respect_work_hours = $8,
		    max_per_day = $9,
		    dedup_window_minutes = $10,
		    templates = $11,
		    target_rule = $12,
		    metadata = $13,
		    updated_at = NOW()
		WHERE key = $1
		RETURNING ` + configColumns

	row := p.db.QueryRow(ctx, query,
		c.Key,
		c.Type,
		c.EventType,
		c.DefaultChannels,
		c.MandatoryChannels,
		c.Priority,
		c.Enabled,
		c.RespectWorkHours,
		c.MaxPerDay,
		c.DedupWindowMinutes,
		c.Templates,
		c.Target,
		c.Metadata,
	)
	return scanConfig(row)
}

// DeleteConfig implements Repository.
func (p *pgRepo) DeleteConfig(ctx context.Context, key string) error {
	ct, err := p.db.Exec(ctx, `DELETE FROM notification_configs WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ListConfigs implements Repository.
func (p *pgRepo) ListConfigs(ctx context.Context) ([]*domain.NotificationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM notification_configs ORDER BY key ASC`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.NotificationConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return configs, nil
}
