// Package remote is the HTTP client for the upstream NextBill core API:
// notifications, subscriptions, and email settings. It owns the wire
// translation (uppercase enums, Java-style timestamps) so the rest of the
// service only sees domain types.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
)

// ErrUnauthorized signals an expired or invalid session upstream. The API
// layer maps it to a blocking 401; the session collaborator handles
// re-authentication.
var ErrUnauthorized = errors.New("upstream session unauthorized")

// errNotFound is internal: mutations on ids the upstream no longer knows
// are treated as already satisfied, never surfaced.
var errNotFound = errors.New("upstream resource not found")

// Config holds upstream connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the upstream core API.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// New creates an upstream client.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// notificationDTO mirrors the upstream notification record.
type notificationDTO struct {
	ID               int64    `json:"id"`
	Message          string   `json:"message"`
	Type             string   `json:"type"`
	Priority         string   `json:"priority"`
	IsRead           bool     `json:"isRead"`
	CreatedAt        jsonTime `json:"createdAt"`
	ReadAt           *jsonTime `json:"readAt"`
	DaysUntil        *int     `json:"daysUntil"`
	SubscriptionName string   `json:"subscriptionName"`
}

func (d notificationDTO) toDomain() notify.Notification {
	n := notify.Notification{
		ID:               strconv.FormatInt(d.ID, 10),
		SubscriptionName: d.SubscriptionName,
		Message:          d.Message,
		Priority:         notify.Priority(strings.ToLower(d.Priority)),
		IsRead:           d.IsRead,
		CreatedAt:        d.CreatedAt.Time,
		Type:             notify.Type(strings.ToLower(d.Type)),
	}
	if d.DaysUntil != nil {
		n.DaysUntil = *d.DaysUntil
	}
	if d.ReadAt != nil {
		t := d.ReadAt.Time
		n.ReadAt = &t
	}
	// The upstream record carries a subscription name but no subscription
	// id, so fetched reminders keep SubscriptionID nil.
	return n
}

type subscriptionDTO struct {
	SubscriptionID  int64    `json:"subscriptionId"`
	Name            string   `json:"name"`
	Cost            int64    `json:"cost"`
	BillingCycle    string   `json:"billingCycle"`
	NextPaymentDate jsonDate `json:"nextPaymentDate"`
	IsPaused        bool     `json:"isPaused"`
}

// CreateNotification is the payload for creating a system notification.
type CreateNotification struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`
	DaysUntil *int   `json:"daysUntil"`
}

// Notifications fetches the user's notification feed.
func (c *Client) Notifications(ctx context.Context, userID string) ([]notify.Notification, error) {
	var dtos []notificationDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/notifications/user/%s", userID), nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}

	out := make([]notify.Notification, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// UnreadCount fetches the authoritative unread counter.
func (c *Client) UnreadCount(ctx context.Context, userID string) (int, error) {
	var resp struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/notifications/user/%s/unread-count", userID), nil, &resp); err != nil {
		return 0, fmt.Errorf("fetch unread count: %w", err)
	}
	return resp.UnreadCount, nil
}

// MarkRead marks one notification read upstream. A notification the
// upstream no longer knows counts as success: the operation is idempotent.
func (c *Client) MarkRead(ctx context.Context, id, userID string) error {
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/notifications/%s/read/user/%s", id, userID), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification read upstream.
func (c *Client) MarkAllRead(ctx context.Context, userID string) error {
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/notifications/user/%s/mark-all-read", userID), nil, nil); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Delete removes one notification upstream. Not-found counts as success.
func (c *Client) Delete(ctx context.Context, id, userID string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%s/user/%s", id, userID), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// ClearAll removes every notification upstream.
func (c *Client) ClearAll(ctx context.Context, userID string) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/user/%s/clear-all", userID), nil, nil); err != nil {
		return fmt.Errorf("clear all notifications: %w", err)
	}
	return nil
}

// Create creates a notification upstream and returns the canonical record
// with its server-assigned id.
func (c *Client) Create(ctx context.Context, userID string, req CreateNotification) (notify.Notification, error) {
	var dto notificationDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/notifications/user/%s", userID), req, &dto); err != nil {
		return notify.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return dto.toDomain(), nil
}

// GeneratePaymentNotifications triggers the upstream batch generation job.
// The upstream returns no diff; callers must refetch the list.
func (c *Client) GeneratePaymentNotifications(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/notifications/generate-payment-notifications", nil, nil); err != nil {
		return fmt.Errorf("generate payment notifications: %w", err)
	}
	return nil
}

// Subscriptions fetches the user's non-paused subscriptions for the
// derived-mode refresh.
func (c *Client) Subscriptions(ctx context.Context, userID string) ([]notify.Subscription, error) {
	var dtos []subscriptionDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/subscriptions/user/%s", userID), nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}

	out := make([]notify.Subscription, 0, len(dtos))
	for _, d := range dtos {
		if d.IsPaused {
			continue
		}
		out = append(out, notify.Subscription{
			ID:              d.SubscriptionID,
			Name:            d.Name,
			Cost:            d.Cost,
			BillingCycle:    notify.BillingCycle(d.BillingCycle),
			NextPaymentDate: d.NextPaymentDate.Time,
			IsPaused:        d.IsPaused,
		})
	}
	return out, nil
}

// EmailSettings fetches the user's email preference record.
func (c *Client) EmailSettings(ctx context.Context, userID string) (notify.EmailSettings, error) {
	var settings notify.EmailSettings
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%s/email-settings", userID), nil, &settings); err != nil {
		return notify.EmailSettings{}, fmt.Errorf("fetch email settings: %w", err)
	}
	return settings, nil
}

// UpdateEmailSettings writes a partial preference update and returns the
// canonical record the upstream persisted.
func (c *Client) UpdateEmailSettings(ctx context.Context, userID string, update notify.EmailSettingsUpdate) (notify.EmailSettings, error) {
	var settings notify.EmailSettings
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/users/%s/email-settings", userID), update, &settings); err != nil {
		return notify.EmailSettings{}, fmt.Errorf("update email settings: %w", err)
	}
	return settings, nil
}

// do performs one upstream call and decodes the response into out (nil out
// discards the body).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 400:
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("upstream error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, upstreamMessage(preview))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// upstreamMessage pulls the human-readable message out of an upstream
// error body, falling back to the raw text.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}
