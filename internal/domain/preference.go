package domain

import "time"

// NotificationPreference is a per-user override of channels/enablement for
// one notification type (optionally narrowed to an event subtype).
// Invariant: Mandatory == true implies Channels is non-empty.
type NotificationPreference struct {
	ID        int64
	UserID    string
	Type      string
	EventType string
	Enabled   bool
	Channels  []string
	Mandatory bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPreference seeds a preference row lazily on first access.
type DefaultPreference struct {
	Type      string
	Enabled   bool
	Channels  []string
	Mandatory bool
}

// DefaultPreferences is the static default-preference table, keyed by
// notification type. Types absent here fall back to the configuration's
// default channel set at resolution time.
var DefaultPreferences = map[string]DefaultPreference{
	string(TaskAssigned): {Type: string(TaskAssigned), Enabled: true, Channels: []string{ChannelInApp, ChannelEmail}, Mandatory: false},
	string(TaskStatus):   {Type: string(TaskStatus), Enabled: true, Channels: []string{ChannelInApp}, Mandatory: false},
	string(OrderCreated): {Type: string(OrderCreated), Enabled: true, Channels: []string{ChannelInApp, ChannelEmail}, Mandatory: false},
	string(OrderStatus):  {Type: string(OrderStatus), Enabled: true, Channels: []string{ChannelInApp}, Mandatory: false},
	string(StockLow):     {Type: string(StockLow), Enabled: true, Channels: []string{ChannelInApp, ChannelEmail}, Mandatory: true},
	string(UserMention):  {Type: string(UserMention), Enabled: true, Channels: []string{ChannelInApp, ChannelPush}, Mandatory: false},
}
