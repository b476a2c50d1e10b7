// Package alerts is the email reminder pipeline: a daily scheduler scans for
// subscriptions hitting a reminder threshold, enqueues one event per match
// to SQS, and a consumer drains the queue and sends the email through SES.
package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Type is the reminder threshold an alert fires at.
type Type string

const (
	TypeD7 Type = "D_7"
	TypeD3 Type = "D_3"
	TypeD1 Type = "D_1"
)

// Days returns how many days before the payment this alert fires.
func (t Type) Days() int {
	switch t {
	case TypeD7:
		return 7
	case TypeD3:
		return 3
	case TypeD1:
		return 1
	default:
		return 0
	}
}

// Label is the user-facing lead time, used in the email copy.
func (t Type) Label() string {
	switch t {
	case TypeD7:
		return "7일"
	case TypeD3:
		return "3일"
	case TypeD1:
		return "1일"
	default:
		return ""
	}
}

// Event is the queue payload for one alert email. EventID ties the
// scheduler's enqueue log line to the consumer's delivery log line.
type Event struct {
	EventID        string `json:"eventId"`
	SubscriptionID int64  `json:"subscriptionId"`
	UserEmail      string `json:"userEmail"`
	ServiceName    string `json:"serviceName"`
	Cost           int64  `json:"cost"`
	PaymentDate    string `json:"paymentDate"`
	AlertType      Type   `json:"alertType"`
	EnqueuedAt     int64  `json:"enqueuedAt"`
}

// NewEvent builds an Event for a payment due on date.
func NewEvent(subID int64, email, service string, cost int64, date time.Time, t Type) Event {
	return Event{
		EventID:        uuid.NewString(),
		SubscriptionID: subID,
		UserEmail:      email,
		ServiceName:    service,
		Cost:           cost,
		PaymentDate:    date.Format("2006-01-02"),
		AlertType:      t,
		EnqueuedAt:     time.Now().UnixNano(),
	}
}
