package usecase

import (
	"context"
	"errors"
	"fmt"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"
)

// Inbox and preference operations, exposed over the REST surface.

func (d *Dispatcher) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	return d.repo.ListNotificationsByUser(ctx, userID, limit, offset)
}

func (d *Dispatcher) ListUnread(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	return d.repo.ListUnreadNotifications(ctx, userID, limit, offset)
}

func (d *Dispatcher) CountUnread(ctx context.Context, userID string) (int, error) {
	return d.repo.CountUnreadNotifications(ctx, userID)
}

func (d *Dispatcher) MarkAsRead(ctx context.Context, id int64, userID string) error {
	err := d.repo.MarkNotificationAsRead(ctx, id, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrNotificationNotFound
	}
	return err
}

func (d *Dispatcher) HideFromApp(ctx context.Context, id int64, userID string) error {
	err := d.repo.HideNotification(ctx, id, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrNotificationNotFound
	}
	return err
}

func (d *Dispatcher) ListDeliveries(ctx context.Context, notificationID int64) ([]*domain.Delivery, error) {
	if _, err := d.repo.GetNotificationByID(ctx, notificationID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrNotificationNotFound
		}
		return nil, err
	}
	return d.repo.ListDeliveriesByNotification(ctx, notificationID)
}

// ResolveChannels answers "which channels would this user get for this
// config" without dispatching anything.
func (d *Dispatcher) ResolveChannels(ctx context.Context, configKey, userID string) ([]string, error) {
	cfg, err := d.configs.Get(ctx, configKey)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, xerrors.ErrConfigNotFound
	}
	u, err := d.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d.channels.ResolveChannelsForUser(ctx, cfg, u)
}

// -----------------------------
// Preferences
// -----------------------------

func (d *Dispatcher) GetPreferences(ctx context.Context, userID string) ([]*domain.NotificationPreference, error) {
	return d.repo.ListPreferencesByUser(ctx, userID)
}

// UpsertPreference writes a preference row. Users write their own rows;
// writing for someone else requires admin.
func (d *Dispatcher) UpsertPreference(ctx context.Context, actorID string, isAdmin bool, p *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	if p.UserID == "" {
		p.UserID = actorID
	}
	if p.UserID != actorID && !isAdmin {
		return nil, xerrors.ErrForbidden
	}
	if p.Type == "" {
		return nil, xerrors.ErrInvalidType
	}
	for _, ch := range p.Channels {
		if !domain.ValidChannel(ch) {
			return nil, fmt.Errorf("channel %q: %w", ch, xerrors.ErrInvalidChannel)
		}
	}
	// A mandatory preference with no channels would make the row
	// unsatisfiable.
	if p.Mandatory && len(p.Channels) == 0 {
		return nil, fmt.Errorf("mandatory preference requires at least one channel: %w", xerrors.ErrInvalidInput)
	}
	return d.repo.UpsertPreference(ctx, p)
}

func (d *Dispatcher) DeletePreference(ctx context.Context, actorID string, isAdmin bool, userID, ptype, eventType string) error {
	if userID == "" {
		userID = actorID
	}
	if userID != actorID && !isAdmin {
		return xerrors.ErrForbidden
	}
	return d.repo.DeletePreference(ctx, userID, ptype, eventType)
}
