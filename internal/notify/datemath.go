package notify

import (
	"math"
	"time"
)

// DaysUntil returns the number of whole days from today until the payment
// date, rounding partial days up. Negative values mean the date has already
// passed and must be filtered out by the caller.
func DaysUntil(nextPaymentDate, today time.Time) int {
	diff := nextPaymentDate.Sub(today)
	return int(math.Ceil(diff.Hours() / 24))
}

// Classify maps a day count to a priority tier. The boundaries are part of
// the product behavior: 0-1 high, 2-3 medium, 4-7 low. Anything outside
// [0, 7] yields no notification at all.
func Classify(daysUntil int) (Priority, bool) {
	switch {
	case daysUntil < 0 || daysUntil > 7:
		return "", false
	case daysUntil <= 1:
		return PriorityHigh, true
	case daysUntil <= 3:
		return PriorityMedium, true
	default:
		return PriorityLow, true
	}
}
