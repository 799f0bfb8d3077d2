package repository

import (
	"context"
	"time"

	"dispatch-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository covers the notification rows themselves.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetNotificationByID(ctx context.Context, id int64) (*domain.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error)
	ListUnreadNotifications(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationAsRead(ctx context.Context, id int64, userID string) error
	HideNotification(ctx context.Context, id int64, userID string) error
	UpdateNotificationStatus(ctx context.Context, id int64, status string, sentAt *time.Time) error
	RescheduleNotification(ctx context.Context, id int64, scheduledAt time.Time) error
}

// DeliveryRepository tracks per-(user, channel) delivery attempts. The
// dispatch pipeline is the only writer.
type DeliveryRepository interface {
	CreateDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error)
	GetDeliveryByID(ctx context.Context, id int64) (*domain.Delivery, error)
	MarkDeliveryProcessing(ctx context.Context, id int64) error
	MarkDeliveryDelivered(ctx context.Context, id int64, externalID *string) error
	MarkDeliveryFailed(ctx context.Context, id int64, errMsg string) error
	MarkDeliveryRetrying(ctx context.Context, id int64, lastError string) error
	ListDeliveriesByNotification(ctx context.Context, notificationID int64) ([]*domain.Delivery, error)
	CountDeliveriesByStatus(ctx context.Context, notificationID int64) (map[string]int, error)
	ListStuckDeliveries(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Delivery, error)
}

// ConfigRepository is the backing store behind the TTL config cache.
type ConfigRepository interface {
	GetConfigByKey(ctx context.Context, key string) (*domain.NotificationConfig, error)
	CreateConfig(ctx context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error)
	UpdateConfig(ctx context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error)
	DeleteConfig(ctx context.Context, key string) error
	ListConfigs(ctx context.Context) ([]*domain.NotificationConfig, error)
}

// PreferenceRepository stores per-user channel preferences.
type PreferenceRepository interface {
	GetPreference(ctx context.Context, userID, ptype, eventType string) (*domain.NotificationPreference, error)
	UpsertPreference(ctx context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error)
	ListPreferencesByUser(ctx context.Context, userID string) ([]*domain.NotificationPreference, error)
	DeletePreference(ctx context.Context, userID, ptype, eventType string) error
}

// UserRepository is the read-only user directory view.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListActiveUsers(ctx context.Context) ([]*domain.User, error)
	ListUsersBySectors(ctx context.Context, sectors []string) ([]*domain.User, error)
}

// Repository aggregates all dispatch DB operations
type Repository interface {
	NotificationRepository
	DeliveryRepository
	ConfigRepository
	PreferenceRepository
	UserRepository
}

type pgRepo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &pgRepo{db: db}
}
