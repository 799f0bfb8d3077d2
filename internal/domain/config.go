package domain

import "time"

// ChannelTemplate holds the render sources for one channel. Body is the
// text/template source; HTML is the email variant when set.
type ChannelTemplate struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	HTML  string `json:"html,omitempty"`
}

// TargetRule narrows broadcast recipients for a notification key.
// An empty AllowedSectors slice means no sector restriction. Predicate names
// a registered type-specific eligibility check (see usecase rule registry).
type TargetRule struct {
	AllowedSectors []string `json:"allowed_sectors,omitempty"`
	MinPrivilege   int      `json:"min_privilege,omitempty"`
	ExcludeOnLeave bool     `json:"exclude_on_leave,omitempty"`
	Predicate      string   `json:"predicate,omitempty"`
}

// NotificationConfig is the cached, admin-managed ruleset for one
// notification key.
type NotificationConfig struct {
	ID                 int64
	Key                string
	Type               string
	EventType          string // optional subtype
	DefaultChannels    []string
	MandatoryChannels  []string // always delivered regardless of preference
	Priority           string
	Enabled            bool
	RespectWorkHours   bool
	MaxPerDay          *int
	DedupWindowMinutes *int
	Templates          map[string]ChannelTemplate // keyed by channel
	Target             *TargetRule
	Metadata           map[string]interface{}
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasMandatory reports whether ch is configured as a mandatory channel.
func (c *NotificationConfig) HasMandatory(ch string) bool {
	for _, m := range c.MandatoryChannels {
		if m == ch {
			return true
		}
	}
	return false
}
