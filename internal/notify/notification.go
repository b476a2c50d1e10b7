// Package notify holds the notification domain model: the notification and
// subscription types, payment-date math, reminder derivation, and the
// dedup/sort rules the UI depends on.
package notify

import "time"

// Priority is the urgency tier of a notification.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort weight of a priority. Unknown priorities rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Type distinguishes derived payment reminders from system notifications.
type Type string

const (
	TypePaymentReminder Type = "payment_reminder"
	TypeSystem          Type = "system"
)

// Notification is a single entry in the user's notification panel.
// SubscriptionID is set only on locally derived reminders; records fetched
// from the server carry a subscription name but no id.
type Notification struct {
	ID               string     `json:"id"`
	SubscriptionID   *int64     `json:"subscriptionId"`
	SubscriptionName string     `json:"subscriptionName,omitempty"`
	Message          string     `json:"message"`
	Priority         Priority   `json:"priority"`
	DaysUntil        int        `json:"daysUntil"`
	IsRead           bool       `json:"isRead"`
	CreatedAt        time.Time  `json:"createdAt"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	Type             Type       `json:"type"`
}

// BillingCycle is how often a subscription charges.
type BillingCycle string

const (
	CycleWeekly  BillingCycle = "WEEKLY"
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
	CycleCustom  BillingCycle = "CUSTOM"
)

// Subscription is the read-only billing snapshot consumed by the deriver.
type Subscription struct {
	ID              int64        `json:"subscriptionId"`
	Name            string       `json:"name"`
	Cost            int64        `json:"cost"`
	BillingCycle    BillingCycle `json:"billingCycle"`
	NextPaymentDate time.Time    `json:"nextPaymentDate"`
	IsPaused        bool         `json:"isPaused"`
}

// EmailSettings is the two-tier email alert preference record: one master
// switch and one switch per reminder threshold.
type EmailSettings struct {
	EmailAlertEnabled bool `json:"isEmailAlertEnabled"`
	Alert7Days        bool `json:"emailAlert7Days"`
	Alert3Days        bool `json:"emailAlert3Days"`
	Alert1Day         bool `json:"emailAlert1Day"`
}

// EmailSettingsUpdate is a partial update: only non-nil fields are sent
// upstream, so a single logical write carries exactly the fields it touched,
// cascade side effects included.
type EmailSettingsUpdate struct {
	EmailAlertEnabled *bool `json:"isEmailAlertEnabled,omitempty"`
	Alert7Days        *bool `json:"emailAlert7Days,omitempty"`
	Alert3Days        *bool `json:"emailAlert3Days,omitempty"`
	Alert1Day         *bool `json:"emailAlert1Day,omitempty"`
}

// CountUnread returns the number of unread notifications in list.
func CountUnread(list []Notification) int {
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n
}
