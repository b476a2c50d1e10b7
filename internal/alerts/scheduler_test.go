package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/subscriptions"
)

type fakeDueLister struct {
	byDate map[string][]subscriptions.DueSubscription
	err    error
	asked  []string
}

func (f *fakeDueLister) DueOn(_ context.Context, date time.Time) ([]subscriptions.DueSubscription, error) {
	key := date.Format("2006-01-02")
	f.asked = append(f.asked, key)
	if f.err != nil {
		return nil, f.err
	}
	return f.byDate[key], nil
}

type fakeEnqueuer struct {
	events []Event
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, event Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return "msg-1", nil
}

var allOn = notify.EmailSettings{EmailAlertEnabled: true, Alert7Days: true, Alert3Days: true, Alert1Day: true}

func TestScanAsksForEachOffset(t *testing.T) {
	today := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	lister := &fakeDueLister{}
	s := NewScheduler(lister, &fakeEnqueuer{}, 0, func() time.Time { return today }, zap.NewNop())

	s.scan(context.Background())

	want := []string{"2025-03-17", "2025-03-13", "2025-03-11"}
	if len(lister.asked) != len(want) {
		t.Fatalf("asked = %v, want %v", lister.asked, want)
	}
	for i := range want {
		if lister.asked[i] != want[i] {
			t.Errorf("asked[%d] = %s, want %s", i, lister.asked[i], want[i])
		}
	}
}

func TestScanEnqueuesAllowedAlerts(t *testing.T) {
	today := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	lister := &fakeDueLister{byDate: map[string][]subscriptions.DueSubscription{
		"2025-03-11": {{
			SubscriptionID: 1, UserEmail: "a@b.kr", ServiceName: "Netflix",
			Cost: 17000, NextPaymentDate: today.AddDate(0, 0, 1), Settings: allOn,
		}},
	}}
	q := &fakeEnqueuer{}
	s := NewScheduler(lister, q, 0, func() time.Time { return today }, zap.NewNop())

	s.scan(context.Background())

	if len(q.events) != 1 {
		t.Fatalf("enqueued %d events, want 1", len(q.events))
	}
	e := q.events[0]
	if e.AlertType != TypeD1 || e.UserEmail != "a@b.kr" || e.PaymentDate != "2025-03-11" {
		t.Errorf("event = %+v", e)
	}
}

func TestScanRespectsPreferences(t *testing.T) {
	today := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	masterOff := notify.EmailSettings{Alert7Days: true, Alert3Days: true, Alert1Day: true}
	thresholdOff := notify.EmailSettings{EmailAlertEnabled: true, Alert7Days: true, Alert1Day: true}

	lister := &fakeDueLister{byDate: map[string][]subscriptions.DueSubscription{
		"2025-03-13": {
			{SubscriptionID: 1, UserEmail: "off@b.kr", ServiceName: "Netflix", Settings: masterOff, NextPaymentDate: today.AddDate(0, 0, 3)},
			{SubscriptionID: 2, UserEmail: "no3@b.kr", ServiceName: "Spotify", Settings: thresholdOff, NextPaymentDate: today.AddDate(0, 0, 3)},
			{SubscriptionID: 3, UserEmail: "yes@b.kr", ServiceName: "Coupang", Settings: allOn, NextPaymentDate: today.AddDate(0, 0, 3)},
		},
	}}
	q := &fakeEnqueuer{}
	s := NewScheduler(lister, q, 0, func() time.Time { return today }, zap.NewNop())

	s.scan(context.Background())

	if len(q.events) != 1 {
		t.Fatalf("enqueued %d events, want 1", len(q.events))
	}
	if q.events[0].UserEmail != "yes@b.kr" {
		t.Errorf("wrong recipient: %+v", q.events[0])
	}
}

func TestScanSurvivesListerError(t *testing.T) {
	lister := &fakeDueLister{err: errors.New("db down")}
	s := NewScheduler(lister, &fakeEnqueuer{}, 0, nil, zap.NewNop())
	s.scan(context.Background())
	if len(lister.asked) != 3 {
		t.Errorf("a failing offset stopped the scan: asked = %v", lister.asked)
	}
}

func TestAllowedGating(t *testing.T) {
	cases := []struct {
		settings notify.EmailSettings
		t        Type
		want     bool
	}{
		{allOn, TypeD7, true},
		{notify.EmailSettings{Alert7Days: true}, TypeD7, false},
		{notify.EmailSettings{EmailAlertEnabled: true}, TypeD7, false},
		{notify.EmailSettings{EmailAlertEnabled: true, Alert1Day: true}, TypeD1, true},
		{notify.EmailSettings{EmailAlertEnabled: true, Alert1Day: true}, TypeD3, false},
	}
	for i, c := range cases {
		if got := allowed(c.settings, c.t); got != c.want {
			t.Errorf("case %d: allowed(%+v, %s) = %v, want %v", i, c.settings, c.t, got, c.want)
		}
	}
}
