package domain

import "time"

// Notification statuses
const (
	NotificationPending   = "PENDING"
	NotificationScheduled = "SCHEDULED"
	NotificationProcessed = "PROCESSED"
	NotificationSent      = "SENT"
)

// Delivery statuses
const (
	DeliveryPending    = "PENDING"
	DeliveryProcessing = "PROCESSING"
	DeliveryDelivered  = "DELIVERED"
	DeliveryFailed     = "FAILED"
	DeliveryRetrying   = "RETRYING"
)

// MaxDeliveryRetries caps automatic redelivery per delivery record.
const MaxDeliveryRetries = 3

// Metadata keys the dispatcher understands
const (
	MetaActorID      = "actorId"
	MetaChangedBy    = "changedBy"
	MetaTriggeredBy  = "triggeredBy"
	MetaCreatedBy    = "createdBy"
	MetaReportedBy   = "reportedBy"
	MetaNoReschedule = "noReschedule"
	MetaAggregated   = "aggregated"
	MetaChangeCount  = "changeCount"
)

type Notification struct {
	ID           int64
	RequestID    string
	UserID       string // empty = broadcast, resolved against eligibility rules
	Type         string
	ConfigKey    string
	Priority     string
	Title        string
	Body         string
	ChannelHint  []string // explicit override, bypasses preference resolution
	EntityType   string
	EntityID     string
	Payload      map[string]interface{}
	Metadata     map[string]interface{}
	Status       string
	VisibleInApp bool
	ReadAt       *time.Time
	SentAt       *time.Time
	ScheduledAt  *time.Time
	CreatedAt    time.Time
}

// IsSent reports whether at least one delivery already succeeded.
func (n *Notification) IsSent() bool {
	return n.SentAt != nil
}

// MetaString reads a string value out of the metadata bag.
func (n *Notification) MetaString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	if v, ok := n.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaBool reads a bool value out of the metadata bag.
func (n *Notification) MetaBool(key string) bool {
	if n.Metadata == nil {
		return false
	}
	if v, ok := n.Metadata[key].(bool); ok {
		return v
	}
	return false
}

type Delivery struct {
	ID             int64
	NotificationID int64
	UserID         string
	Channel        string
	Recipient      string // email address / phone number, empty for in_app and push
	Status         string
	AttemptCount   int
	LastError      *string
	ExternalID     *string // message id reported by the transport
	SentAt         *time.Time
	DeliveredAt    *time.Time
	FailedAt       *time.Time
	CreatedAt      time.Time
}

// DeliveryStats aggregates per-status delivery counts for one notification.
type DeliveryStats struct {
	NotificationID int64          `json:"notification_id"`
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
}
