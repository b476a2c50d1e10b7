package notify

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Deriver builds payment-reminder candidates from a subscription snapshot.
// It is a pure transform: no side effects, no network.
type Deriver struct {
	now     func() time.Time
	printer *message.Printer
}

// NewDeriver creates a deriver. now is injectable for tests; nil means
// time.Now.
func NewDeriver(now func() time.Time) *Deriver {
	if now == nil {
		now = time.Now
	}
	return &Deriver{
		now:     now,
		printer: message.NewPrinter(language.Korean),
	}
}

// Derive computes one reminder per subscription whose next payment falls
// within the reminder window. Paused subscriptions and subscriptions with
// no billing date are skipped, never fatal.
func (d *Deriver) Derive(subs []Subscription) []Notification {
	now := d.now()
	var out []Notification

	for _, sub := range subs {
		if sub.IsPaused || sub.NextPaymentDate.IsZero() {
			continue
		}

		daysUntil := DaysUntil(sub.NextPaymentDate, now)
		priority, ok := Classify(daysUntil)
		if !ok {
			continue
		}

		subID := sub.ID
		out = append(out, Notification{
			ID:               fmt.Sprintf("%d-%d", sub.ID, now.UnixMilli()),
			SubscriptionID:   &subID,
			SubscriptionName: sub.Name,
			Message:          d.renderMessage(sub, daysUntil),
			Priority:         priority,
			DaysUntil:        daysUntil,
			IsRead:           false,
			CreatedAt:        now,
			Type:             TypePaymentReminder,
		})
	}

	return out
}

func (d *Deriver) renderMessage(sub Subscription, daysUntil int) string {
	cost := d.printer.Sprintf("%d", sub.Cost)
	switch {
	case daysUntil == 0:
		return fmt.Sprintf("🔥 %s - 오늘 결제일입니다! (₩%s)", sub.Name, cost)
	case daysUntil == 1:
		return fmt.Sprintf("⏰ %s - 내일 결제됩니다! (₩%s)", sub.Name, cost)
	case daysUntil <= 3:
		return fmt.Sprintf("📅 %s - %d일 후 결제됩니다 (₩%s)", sub.Name, daysUntil, cost)
	default:
		return fmt.Sprintf("📋 %s - %d일 후 결제 예정 (₩%s)", sub.Name, daysUntil, cost)
	}
}
