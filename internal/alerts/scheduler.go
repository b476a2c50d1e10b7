package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/metrics"
	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/subscriptions"
)

// DueLister scans for subscriptions whose payment lands on a given date.
type DueLister interface {
	DueOn(ctx context.Context, date time.Time) ([]subscriptions.DueSubscription, error)
}

// Enqueuer puts one alert event on the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, event Event) (string, error)
}

// Scheduler runs the daily alert scan: for each reminder offset it lists
// the subscriptions due that many days out and enqueues an event for every
// owner whose preferences allow that threshold.
type Scheduler struct {
	repo     DueLister
	producer Enqueuer
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler builds a Scheduler. A zero interval defaults to 24h; a nil
// now means time.Now.
func NewScheduler(repo DueLister, producer Enqueuer, interval time.Duration, now func() time.Time, logger *zap.Logger) *Scheduler {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{repo: repo, producer: producer, interval: interval, now: now, logger: logger}
}

// Run scans once immediately and then once per interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert scheduler stopping")
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	today := s.now()
	enqueued := 0

	for _, t := range []Type{TypeD7, TypeD3, TypeD1} {
		target := today.AddDate(0, 0, t.Days())
		due, err := s.repo.DueOn(ctx, target)
		if err != nil {
			s.logger.Error("due scan failed",
				zap.Error(err),
				zap.String("alert_type", string(t)),
			)
			continue
		}

		for _, d := range due {
			if !allowed(d.Settings, t) {
				continue
			}
			event := NewEvent(d.SubscriptionID, d.UserEmail, d.ServiceName, d.Cost, d.NextPaymentDate, t)
			if _, err := s.producer.Enqueue(ctx, event); err != nil {
				s.logger.Error("alert enqueue failed",
					zap.Error(err),
					zap.String("event_id", event.EventID),
					zap.Int64("subscription_id", d.SubscriptionID),
				)
				continue
			}
			metrics.RecordAlertEnqueued(string(t))
			enqueued++
		}
	}

	s.logger.Info("alert scan complete", zap.Int("enqueued", enqueued))
}

// allowed reports whether the owner's preferences permit this threshold.
// The master switch gates everything; each threshold has its own switch.
func allowed(settings notify.EmailSettings, t Type) bool {
	if !settings.EmailAlertEnabled {
		return false
	}
	switch t {
	case TypeD7:
		return settings.Alert7Days
	case TypeD3:
		return settings.Alert3Days
	case TypeD1:
		return settings.Alert1Day
	default:
		return false
	}
}
