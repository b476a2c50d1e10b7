package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestSessionCache_RoundTrip(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewSessionCache(client, zap.NewNop())
	ctx := context.Background()

	subID := int64(7)
	list := []notify.Notification{
		{
			ID:               "7-1717232400000",
			SubscriptionID:   &subID,
			SubscriptionName: "Netflix",
			Message:          "tomorrow",
			Priority:         notify.PriorityHigh,
			DaysUntil:        1,
			CreatedAt:        time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			Type:             notify.TypePaymentReminder,
		},
	}

	if err := c.Save(ctx, "42", list); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := c.Load(ctx, "42")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].ID != list[0].ID || got[0].Priority != notify.PriorityHigh {
		t.Errorf("round trip mangled the notification: %+v", got[0])
	}
	if got[0].SubscriptionID == nil || *got[0].SubscriptionID != 7 {
		t.Errorf("subscription id lost: %+v", got[0].SubscriptionID)
	}
}

func TestSessionCache_MissingKey(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewSessionCache(client, zap.NewNop())

	got, err := c.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("missing key must not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing key, got %v", got)
	}
}

func TestSessionCache_CorruptBlobResets(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewSessionCache(client, zap.NewNop())
	ctx := context.Background()

	mr.Set("notifications:42", "{not json")

	got, err := c.Load(ctx, "42")
	if err != nil {
		t.Fatalf("corrupt blob must not fail session startup: %v", err)
	}
	if got != nil {
		t.Errorf("corrupt blob should be treated as empty, got %v", got)
	}

	// The garbage must be gone so the next write starts clean.
	if mr.Exists("notifications:42") {
		t.Error("corrupt blob should have been deleted")
	}
}

func TestSessionCache_Clear(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewSessionCache(client, zap.NewNop())
	ctx := context.Background()

	if err := c.Save(ctx, "42", []notify.Notification{{ID: "x"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := c.Clear(ctx, "42"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if mr.Exists("notifications:42") {
		t.Error("blob should be gone after clear")
	}
}
