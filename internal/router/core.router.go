package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	hrest "dispatch-service/internal/handler/http"
	wshandler "dispatch-service/internal/handler/ws"
	"dispatch-service/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the dispatch service
func SetupRoutes(
	r chi.Router,
	h *hrest.DispatchHandler,
	wsHandler *wshandler.WSHandler,
	auth *middleware.AuthMiddleware,
	rateLimit func(http.Handler) http.Handler,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(rateLimit)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ============================================================
	// Inbox Routes (all require auth)
	// ============================================================
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(auth.Require)

		r.Get("/", h.ListNotifications)
		r.Get("/unread", h.ListUnread)
		r.Get("/unread/count", h.CountUnread)
		r.Patch("/{id}/read", h.MarkAsRead)
		r.Patch("/{id}/hide", h.HideNotification)

		r.Get("/preferences", h.GetPreferences)
		r.Post("/preferences", h.UpsertPreference)
		r.Delete("/preferences", h.DeletePreference)

		r.Get("/channels/resolve", h.ResolveChannels)

		// WebSocket endpoint
		r.Get("/ws", wsHandler.HandleNotifications)
	})

	// ============================================================
	// Dispatch Routes (service / admin callers)
	// ============================================================
	r.Route("/api/v1/dispatch", func(r chi.Router) {
		r.Use(auth.RequireAdmin)

		r.Post("/notifications", h.CreateNotification)
		r.Post("/notifications/{id}", h.DispatchNotification)
		r.Post("/bulk", h.DispatchBulk)

		r.Post("/deliveries/{id}/result", h.DeliveryResult)
		r.Get("/notifications/{id}/deliveries", h.ListDeliveries)
		r.Get("/notifications/{id}/stats", h.DeliveryStats)
	})

	// ============================================================
	// Config Routes (admin only)
	// ============================================================
	r.Route("/api/v1/configs", func(r chi.Router) {
		r.Use(auth.RequireAdmin)

		r.Get("/", h.ListConfigs)
		r.Post("/", h.CreateConfig)
		r.Get("/{key}", h.GetConfig)
		r.Put("/{key}", h.UpdateConfig)
		r.Delete("/{key}", h.DeleteConfig)
	})

	return r
}
