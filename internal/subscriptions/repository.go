package subscriptions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
)

// DueSubscription is one row of the scheduler's daily scan: a subscription
// hitting a reminder threshold, joined with its owner's email preferences.
type DueSubscription struct {
	SubscriptionID  int64
	UserID          int64
	UserEmail       string
	ServiceName     string
	Cost            int64
	NextPaymentDate time.Time
	Settings        notify.EmailSettings
}

// Repository reads subscription data for the deriver and the scheduler.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a subscription repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Active lists a user's unpaused subscriptions, newest payment date first.
func (r *Repository) Active(ctx context.Context, userID string) ([]notify.Subscription, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	query := `
		SELECT id, name, cost, billing_cycle, next_payment_date, is_paused
		FROM subscriptions
		WHERE user_id = $1 AND is_paused = false
		ORDER BY next_payment_date
	`

	rows, err := r.db.Pool().Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []notify.Subscription
	for rows.Next() {
		var s notify.Subscription
		if err := rows.Scan(&s.ID, &s.Name, &s.Cost, &s.BillingCycle, &s.NextPaymentDate, &s.IsPaused); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// DueOn lists unpaused subscriptions whose next payment lands exactly on
// date, joined with each owner's email alert preferences. The scheduler
// calls this once per reminder offset.
func (r *Repository) DueOn(ctx context.Context, date time.Time) ([]DueSubscription, error) {
	query := `
		SELECT s.id, s.user_id, u.email, s.name, s.cost, s.next_payment_date,
		       u.is_email_alert_enabled, u.email_alert_7days, u.email_alert_3days, u.email_alert_1day
		FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.is_paused = false AND s.next_payment_date = $1::date
	`

	rows, err := r.db.Pool().Query(ctx, query, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query due subscriptions: %w", err)
	}
	defer rows.Close()

	var due []DueSubscription
	for rows.Next() {
		var d DueSubscription
		if err := rows.Scan(
			&d.SubscriptionID, &d.UserID, &d.UserEmail, &d.ServiceName, &d.Cost, &d.NextPaymentDate,
			&d.Settings.EmailAlertEnabled, &d.Settings.Alert7Days, &d.Settings.Alert3Days, &d.Settings.Alert1Day,
		); err != nil {
			return nil, fmt.Errorf("scan due subscription: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due subscriptions: %w", err)
	}
	return due, nil
}
