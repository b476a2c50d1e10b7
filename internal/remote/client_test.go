package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop()), srv
}

func TestNotifications_TranslatesWireFormat(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/user/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": 101,
				"message": "Netflix 구독이 오늘 결제됩니다.",
				"type": "PAYMENT_REMINDER",
				"priority": "HIGH",
				"isRead": false,
				"createdAt": "2025-06-01T09:00:00",
				"readAt": null,
				"daysUntil": 0,
				"subscriptionName": "Netflix"
			},
			{
				"id": 102,
				"message": "system notice",
				"type": "SYSTEM",
				"priority": "MEDIUM",
				"isRead": true,
				"createdAt": "2025-05-30T10:30:00",
				"readAt": "2025-05-31T08:00:00",
				"daysUntil": null,
				"subscriptionName": null
			}
		]`))
	})

	got, err := client.Notifications(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}

	first := got[0]
	if first.ID != "101" {
		t.Errorf("id should be stringified, got %q", first.ID)
	}
	if first.Priority != notify.PriorityHigh {
		t.Errorf("priority should be lowercased, got %q", first.Priority)
	}
	if first.Type != notify.TypePaymentReminder {
		t.Errorf("type should be lowercased, got %q", first.Type)
	}
	if first.SubscriptionID != nil {
		t.Error("upstream records carry no subscription id, must stay nil")
	}
	if first.SubscriptionName != "Netflix" {
		t.Errorf("subscriptionName = %q", first.SubscriptionName)
	}
	if first.CreatedAt.IsZero() {
		t.Error("createdAt should parse")
	}

	second := got[1]
	if second.SubscriptionID != nil {
		t.Error("system notification has no subscription")
	}
	if second.ReadAt == nil {
		t.Error("readAt should parse when present")
	}
}

func TestUnreadCount(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"unreadCount": 5})
	})

	got, err := client.UnreadCount(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestMarkRead_NotFoundIsIdempotentSuccess(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"알림을 찾을 수 없습니다."}`, http.StatusNotFound)
	})

	if err := client.MarkRead(context.Background(), "999", "42"); err != nil {
		t.Errorf("404 on mark-read must count as success, got %v", err)
	}
	if err := client.Delete(context.Background(), "999", "42"); err != nil {
		t.Errorf("404 on delete must count as success, got %v", err)
	}
}

func TestDo_UnauthorizedSentinel(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Notifications(context.Background(), "42")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDo_ServerErrorCarriesUpstreamMessage(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"서버 오류"}`, http.StatusInternalServerError)
	})

	err := client.MarkAllRead(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "서버 오류") {
		t.Errorf("error should carry the upstream message, got %q", got)
	}
}

func TestSubscriptions_FiltersPaused(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"subscriptionId": 1, "name": "Netflix", "cost": 17000, "billingCycle": "MONTHLY", "nextPaymentDate": "2025-06-02", "isPaused": false},
			{"subscriptionId": 2, "name": "Spotify", "cost": 10900, "billingCycle": "MONTHLY", "nextPaymentDate": "2025-06-05", "isPaused": true}
		]`))
	})

	got, err := client.Subscriptions(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("paused subscriptions must be filtered, got %d", len(got))
	}
	if got[0].Name != "Netflix" {
		t.Errorf("expected Netflix, got %q", got[0].Name)
	}
	if got[0].NextPaymentDate.Format("2006-01-02") != "2025-06-02" {
		t.Errorf("date mangled: %v", got[0].NextPaymentDate)
	}
}

func TestUpdateEmailSettings_SendsOnlyChangedFields(t *testing.T) {
	var body map[string]any
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(notify.EmailSettings{
			EmailAlertEnabled: true, Alert7Days: true, Alert3Days: true, Alert1Day: true,
		})
	})

	enabled := true
	update := notify.EmailSettingsUpdate{EmailAlertEnabled: &enabled}
	got, err := client.UpdateEmailSettings(context.Background(), "42", update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(body) != 1 {
		t.Errorf("only the touched field should be sent, got %v", body)
	}
	if _, ok := body["isEmailAlertEnabled"]; !ok {
		t.Errorf("expected isEmailAlertEnabled in payload, got %v", body)
	}
	if !got.EmailAlertEnabled || !got.Alert7Days {
		t.Errorf("canonical response mangled: %+v", got)
	}
}
