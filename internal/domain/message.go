package domain

import "time"

// Channels
const (
	ChannelInApp    = "in_app"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelPush     = "push"
)

// AllChannels lists every channel the dispatcher can target.
var AllChannels = []string{ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush}

// ValidChannel reports whether ch is a known channel value.
func ValidChannel(ch string) bool {
	for _, c := range AllChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// AsyncChannel reports whether delivery on ch goes through the job queue
// instead of the synchronous in-app path.
func AsyncChannel(ch string) bool {
	return ch != ChannelInApp
}

// NotificationType defines category of messages
type NotificationType string

const (
	TaskAssigned  NotificationType = "TASK_ASSIGNED"
	TaskStatus    NotificationType = "TASK_STATUS"
	TaskComment   NotificationType = "TASK_COMMENT"
	OrderCreated  NotificationType = "ORDER_CREATED"
	OrderStatus   NotificationType = "ORDER_STATUS"
	StockLow      NotificationType = "STOCK_LOW"
	EntityUpdated NotificationType = "ENTITY_UPDATED"
	UserMention   NotificationType = "USER_MENTION"
	General       NotificationType = "GENERAL"
)

// WSMessage is a minimal view of a notification for websocket clients
type WSMessage struct {
	UserID   string                 `json:"user_id"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Type     string                 `json:"type"`
	Priority string                 `json:"priority,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChannelJob is one unit of asynchronous channel work handed to the queue.
// The transport worker reports the outcome back through the delivery-result
// callback, which drives the delivery state machine.
type ChannelJob struct {
	NotificationID int64  `json:"notification_id"`
	DeliveryID     int64  `json:"delivery_id"`
	Channel        string `json:"channel"`
	UserID         string `json:"user_id"`
	Recipient      string `json:"recipient"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	HTML           string `json:"html,omitempty"`
	Attempt        int    `json:"attempt"`
}

// Lifecycle event kinds
const (
	EventCreated         = "notification.created"
	EventDispatched      = "notification.dispatched"
	EventDispatchFailed  = "notification.dispatch_failed"
	EventDelivered       = "delivery.delivered"
	EventDeliveryFailed  = "delivery.failed"
	EventDeliveryDropped = "delivery.dropped" // retry cap exhausted
)

// LifecycleEvent is a fire-and-forget observability record published after
// each major state transition. Consumers are external.
type LifecycleEvent struct {
	Kind           string    `json:"kind"`
	NotificationID int64     `json:"notification_id"`
	DeliveryID     int64     `json:"delivery_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// RuleCheckResult is the outcome of a business-rule evaluation.
type RuleCheckResult struct {
	Allowed          bool
	Reason           string
	ShouldReschedule bool
	RescheduleAt     time.Time
}

// FieldChange describes one field-level change buffered for aggregation.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	Message  string `json:"message"` // natural single-change phrasing
}
