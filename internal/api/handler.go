package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/metrics"
	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/prefs"
	"github.com/nextbill/gateway/internal/remote"
	notifysync "github.com/nextbill/gateway/internal/sync"
)

// NotificationService is the sync layer surface the handlers call.
type NotificationService interface {
	List() []notify.Notification
	UnreadCount() int
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	CreateSystem(ctx context.Context, req remote.CreateNotification) (notify.Notification, error)
	GeneratePayment(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// PreferenceService is the reconciler surface the handlers call.
type PreferenceService interface {
	Settings() notify.EmailSettings
	SetMaster(ctx context.Context, enabled bool) (notify.EmailSettings, error)
	SetThreshold(ctx context.Context, th prefs.Threshold, enabled bool) (notify.EmailSettings, error)
}

// CreateNotificationRequest is the body for POST /v1/notifications.
type CreateNotificationRequest struct {
	Message   string `json:"message"`
	Priority  string `json:"priority"`
	DaysUntil *int   `json:"daysUntil"`
}

// EmailSettingsRequest is the body for PUT /v1/email-settings. A request
// carries exactly one logical toggle: the master switch, or one threshold.
type EmailSettingsRequest struct {
	EmailAlertEnabled *bool  `json:"isEmailAlertEnabled,omitempty"`
	Threshold         string `json:"threshold,omitempty"`
	Enabled           *bool  `json:"enabled,omitempty"`
}

// NotificationListResponse is the body for GET /v1/notifications.
type NotificationListResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger        *zap.Logger
	notifications NotificationService
	preferences   PreferenceService
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, notifications NotificationService, preferences PreferenceService) *Handler {
	return &Handler{
		logger:        logger,
		notifications: notifications,
		preferences:   preferences,
	}
}

// Routes mounts every notification and preference route on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/notifications", h.ListNotifications)
	r.Get("/notifications/unread-count", h.UnreadCount)
	r.Post("/notifications", h.CreateNotification)
	r.Post("/notifications/refresh", h.RefreshNotifications)
	r.Post("/notifications/generate-payment-notifications", h.GeneratePayment)
	r.Put("/notifications/mark-all-read", h.MarkAllRead)
	r.Put("/notifications/{id}/read", h.MarkRead)
	r.Delete("/notifications/clear-all", h.ClearAll)
	r.Delete("/notifications/{id}", h.DeleteNotification)

	r.Get("/email-settings", h.GetEmailSettings)
	r.Put("/email-settings", h.UpdateEmailSettings)

	return r
}

// ListNotifications handles GET /v1/notifications. The list comes back in
// panel order, with the unread counter alongside.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: h.notifications.List(),
		UnreadCount:   h.notifications.UnreadCount(),
	})
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.notifications.UnreadCount()})
}

// MarkRead handles PUT /v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.notifications.MarkRead(r.Context(), id); err != nil {
		h.writeUpstreamError(w, "mark_read", err)
		return
	}
	metrics.RecordMutation("mark_read", "ok")
	h.writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.notifications.UnreadCount()})
}

// MarkAllRead handles PUT /v1/notifications/mark-all-read
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkAllRead(r.Context()); err != nil {
		h.writeUpstreamError(w, "mark_all_read", err)
		return
	}
	metrics.RecordMutation("mark_all_read", "ok")
	h.writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.notifications.UnreadCount()})
}

// DeleteNotification handles DELETE /v1/notifications/{id}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.notifications.Delete(r.Context(), id); err != nil {
		h.writeUpstreamError(w, "delete", err)
		return
	}
	metrics.RecordMutation("delete", "ok")
	h.writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.notifications.UnreadCount()})
}

// ClearAll handles DELETE /v1/notifications
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.ClearAll(r.Context()); err != nil {
		h.writeUpstreamError(w, "clear_all", err)
		return
	}
	metrics.RecordMutation("clear_all", "ok")
	w.WriteHeader(http.StatusNoContent)
}

// CreateNotification handles POST /v1/notifications. System notifications
// are created upstream first; the server's canonical record is returned.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "message is required")
		return
	}
	priority := req.Priority
	if priority == "" {
		priority = string(notify.PriorityLow)
	}
	switch notify.Priority(priority) {
	case notify.PriorityHigh, notify.PriorityMedium, notify.PriorityLow:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid priority", "priority must be high, medium, or low")
		return
	}

	created, err := h.notifications.CreateSystem(r.Context(), remote.CreateNotification{
		Message:   req.Message,
		Type:      string(notify.TypeSystem),
		Priority:  priority,
		DaysUntil: req.DaysUntil,
	})
	if err != nil {
		h.writeUpstreamError(w, "create", err)
		return
	}
	metrics.RecordMutation("create", "ok")
	h.writeJSON(w, http.StatusCreated, created)
}

// RefreshNotifications handles POST /v1/notifications/refresh. A refresh
// superseded by a newer one is reported as such, not as a failure.
func (h *Handler) RefreshNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Refresh(r.Context()); err != nil {
		if errors.Is(err, notifysync.ErrStaleRefresh) {
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "superseded"})
			return
		}
		h.writeUpstreamError(w, "refresh", err)
		return
	}
	h.writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: h.notifications.List(),
		UnreadCount:   h.notifications.UnreadCount(),
	})
}

// GeneratePayment handles POST /v1/notifications/generate-payment-notifications
func (h *Handler) GeneratePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.GeneratePayment(r.Context()); err != nil && !errors.Is(err, notifysync.ErrStaleRefresh) {
		h.writeUpstreamError(w, "generate_payment", err)
		return
	}
	metrics.RecordMutation("generate_payment", "ok")
	h.writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: h.notifications.List(),
		UnreadCount:   h.notifications.UnreadCount(),
	})
}

// GetEmailSettings handles GET /v1/email-settings
func (h *Handler) GetEmailSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.preferences.Settings())
}

// UpdateEmailSettings handles PUT /v1/email-settings
func (h *Handler) UpdateEmailSettings(w http.ResponseWriter, r *http.Request) {
	var req EmailSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	masterToggle := req.EmailAlertEnabled != nil
	thresholdToggle := req.Threshold != "" && req.Enabled != nil
	if masterToggle == thresholdToggle {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid toggle",
			"send either isEmailAlertEnabled, or threshold with enabled")
		return
	}

	var (
		settings notify.EmailSettings
		err      error
	)
	if masterToggle {
		settings, err = h.preferences.SetMaster(r.Context(), *req.EmailAlertEnabled)
	} else {
		settings, err = h.preferences.SetThreshold(r.Context(), prefs.Threshold(req.Threshold), *req.Enabled)
	}
	if err != nil {
		if errors.Is(err, prefs.ErrUnknownThreshold) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid threshold",
				"threshold must be 7days, 3days, or 1day")
			return
		}
		h.writeUpstreamError(w, "email_settings", err)
		return
	}
	metrics.RecordMutation("email_settings", "ok")
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, op string, err error) {
	metrics.RecordMutation(op, "error")
	if errors.Is(err, remote.ErrUnauthorized) {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Upstream rejected credentials", "")
		return
	}
	h.logger.Warn("upstream operation failed", zap.String("op", op), zap.Error(err))
	h.writeError(w, http.StatusBadGateway, "upstream_error", "Upstream request failed", err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
