package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dispatch-service/internal/domain"
	"dispatch-service/internal/middleware"
	"dispatch-service/internal/usecase"
	"dispatch-service/pkg/response"
	"dispatch-service/pkg/xerrors"
)

type DispatchHandler struct {
	uc      *usecase.Dispatcher
	configs *usecase.ConfigStore
}

func NewDispatchHandler(uc *usecase.Dispatcher, configs *usecase.ConfigStore) *DispatchHandler {
	return &DispatchHandler{uc: uc, configs: configs}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotificationNotFound),
		errors.Is(err, xerrors.ErrDeliveryNotFound),
		errors.Is(err, xerrors.ErrConfigNotFound),
		errors.Is(err, xerrors.ErrNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xerrors.ErrInvalidChannel),
		errors.Is(err, xerrors.ErrInvalidType),
		errors.Is(err, xerrors.ErrInvalidInput),
		errors.Is(err, xerrors.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, xerrors.ErrForbidden):
		response.Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, xerrors.ErrQueueUnavailable):
		response.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

// requestUserID pulls the authenticated user from the context. Routes behind
// auth.Require always have one; anything else gets a 401 instead of a panic.
func requestUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok || userID == "" {
		response.Error(w, http.StatusUnauthorized, "Missing authorization token")
		return "", false
	}
	return userID, true
}

// ----------------------
// Dispatch Handlers
// ----------------------

func (h *DispatchHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var n domain.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	created, err := h.uc.CreateNotification(r.Context(), &n)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *DispatchHandler) DispatchNotification(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	if r.URL.Query().Get("aggregate") == "true" {
		aggregated, err := h.uc.DispatchWithAggregation(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, map[string]bool{"aggregated": aggregated})
		return
	}

	if err := h.uc.Dispatch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"dispatched": true})
}

func (h *DispatchHandler) DispatchBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	res := h.uc.DispatchBulk(r.Context(), req.IDs)
	response.JSON(w, http.StatusOK, res)
}

func (h *DispatchHandler) DeliveryResult(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	var req struct {
		Success    bool   `json:"success"`
		Error      string `json:"error,omitempty"`
		ExternalID string `json:"external_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	if err := h.uc.HandleDeliveryResult(r.Context(), id, req.Success, req.Error, req.ExternalID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DispatchHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	items, err := h.uc.ListDeliveries(r.Context(), pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *DispatchHandler) DeliveryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.uc.GetDeliveryStats(r.Context(), pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

func (h *DispatchHandler) ResolveChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	if override := r.URL.Query().Get("user_id"); override != "" && middleware.IsAdmin(r.Context()) {
		userID = override
	}

	key := r.URL.Query().Get("config_key")
	if key == "" {
		response.Error(w, http.StatusBadRequest, "config_key is required")
		return
	}

	chs, err := h.uc.ResolveChannels(r.Context(), key, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"channels": chs})
}

// ----------------------
// Inbox Handlers
// ----------------------

func (h *DispatchHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.uc.ListNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *DispatchHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.uc.ListUnread(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *DispatchHandler) CountUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	count, err := h.uc.CountUnread(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *DispatchHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	if err := h.uc.MarkAsRead(r.Context(), pathID(r), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DispatchHandler) HideNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	if err := h.uc.HideFromApp(r.Context(), pathID(r), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------
// Preference Handlers
// ----------------------

func (h *DispatchHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	prefs, err := h.uc.GetPreferences(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, prefs)
}

func (h *DispatchHandler) UpsertPreference(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	var pref domain.NotificationPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	created, err := h.uc.UpsertPreference(r.Context(), actorID, middleware.IsAdmin(r.Context()), &pref)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, created)
}

func (h *DispatchHandler) DeletePreference(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	err := h.uc.DeletePreference(r.Context(), actorID, middleware.IsAdmin(r.Context()),
		q.Get("user_id"), q.Get("type"), q.Get("event_type"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------
// Config Handlers (admin)
// ----------------------

func (h *DispatchHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	items, err := h.configs.ListConfigs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

func (h *DispatchHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	cfg, err := h.configs.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if cfg == nil {
		response.Error(w, http.StatusNotFound, "configuration not found")
		return
	}
	response.JSON(w, http.StatusOK, cfg)
}

func (h *DispatchHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	created, err := h.configs.CreateConfig(r.Context(), &cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *DispatchHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	cfg.Key = chi.URLParam(r, "key")

	updated, err := h.configs.UpdateConfig(r.Context(), &cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, updated)
}

func (h *DispatchHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.configs.DeleteConfig(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
