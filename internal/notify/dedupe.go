package notify

import (
	"fmt"
	"sort"
)

// dedupeKey identifies a reminder for dedup purposes: same subscription,
// same day count, created on the same calendar day. This stops the hourly
// refresh from re-deriving the same reminder all day long.
func dedupeKey(n Notification) string {
	subID := int64(-1)
	if n.SubscriptionID != nil {
		subID = *n.SubscriptionID
	}
	y, m, d := n.CreatedAt.Date()
	return fmt.Sprintf("%d:%d:%04d-%02d-%02d", subID, n.DaysUntil, y, m, d)
}

// Dedupe filters candidates that duplicate an existing notification or an
// earlier candidate. The first occurrence wins.
func Dedupe(existing, candidates []Notification) []Notification {
	seen := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		if n.Type != TypePaymentReminder {
			continue
		}
		seen[dedupeKey(n)] = struct{}{}
	}

	var out []Notification
	for _, n := range candidates {
		key := dedupeKey(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SortForDisplay returns a copy of list in panel order: unread first, then
// priority (high before low), then most recent first. The order is
// recomputed on every read because read flags mutate in place.
func SortForDisplay(list []Notification) []Notification {
	out := make([]Notification, len(list))
	copy(out, list)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsRead != out[j].IsRead {
			return !out[i].IsRead
		}
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
