package httphandler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Inbox and preference handlers must reject requests that reached them
// without an authenticated identity instead of panicking on the context.
func TestInboxHandlersRejectMissingIdentity(t *testing.T) {
	h := NewDispatchHandler(nil, nil)

	handlers := map[string]http.HandlerFunc{
		"list":              h.ListNotifications,
		"unread":            h.ListUnread,
		"unread count":      h.CountUnread,
		"mark read":         h.MarkAsRead,
		"hide":              h.HideNotification,
		"get preferences":   h.GetPreferences,
		"upsert preference": h.UpsertPreference,
		"delete preference": h.DeletePreference,
		"resolve channels":  h.ResolveChannels,
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			assert.NotPanics(t, func() { handler(rec, req) })
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
