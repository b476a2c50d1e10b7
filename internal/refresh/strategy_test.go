package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/store"
)

type fakeFeed struct {
	list      []notify.Notification
	unread    int
	listErr   error
	unreadErr error
}

func (f *fakeFeed) Notifications(context.Context, string) ([]notify.Notification, error) {
	return f.list, f.listErr
}

func (f *fakeFeed) UnreadCount(context.Context, string) (int, error) {
	return f.unread, f.unreadErr
}

type fakeSource struct {
	subs []notify.Subscription
	err  error
}

func (f *fakeSource) Active(context.Context, string) ([]notify.Subscription, error) {
	return f.subs, f.err
}

func TestRemoteStrategyReplacesWholesale(t *testing.T) {
	feed := &fakeFeed{
		list:   []notify.Notification{{ID: "7", Type: notify.TypeSystem}},
		unread: 4,
	}
	s := NewRemoteStrategy(feed, "1")

	res, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Merge {
		t.Error("remote mode must replace, not merge")
	}
	if len(res.List) != 1 || res.List[0].ID != "7" {
		t.Errorf("list = %+v, want the server feed only", res.List)
	}
	if res.Unread != 4 {
		t.Errorf("unread = %d, want the server counter", res.Unread)
	}
}

func TestRemoteStrategyPropagatesErrors(t *testing.T) {
	s := NewRemoteStrategy(&fakeFeed{listErr: errors.New("502")}, "1")
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	s = NewRemoteStrategy(&fakeFeed{unreadErr: errors.New("502")}, "1")
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDerivedStrategyReturnsMergeCandidates(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{subs: []notify.Subscription{
		{ID: 1, Name: "Netflix", Cost: 17000, NextPaymentDate: now.AddDate(0, 0, 1)},
		{ID: 2, Name: "Spotify", Cost: 10900, NextPaymentDate: now.AddDate(0, 0, 30)},
	}}
	s := NewDerivedStrategy(src, notify.NewDeriver(func() time.Time { return now }), "1")

	res, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !res.Merge {
		t.Error("derived mode must merge, not replace")
	}
	if res.Unread != -1 {
		t.Errorf("unread = %d, want -1 (recompute)", res.Unread)
	}
	if len(res.List) != 1 {
		t.Fatalf("len = %d, want only the in-window reminder", len(res.List))
	}
	if res.List[0].SubscriptionName != "Netflix" || res.List[0].Priority != notify.PriorityHigh {
		t.Errorf("derived candidate = %+v", res.List[0])
	}
}

func TestDerivedCandidatesDedupeAtApply(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{subs: []notify.Subscription{
		{ID: 1, Name: "Netflix", Cost: 17000, NextPaymentDate: now.AddDate(0, 0, 1)},
	}}
	s := NewDerivedStrategy(src, notify.NewDeriver(func() time.Time { return now }), "1")
	st := store.New(func() time.Time { return now })

	res, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if added := st.PrependNew(res.List); added != 1 {
		t.Fatalf("first apply added %d, want 1", added)
	}

	res, err = s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if added := st.PrependNew(res.List); added != 0 {
		t.Errorf("same-day re-derivation added %d, want 0", added)
	}
}

func TestDerivedStrategyPropagatesSourceError(t *testing.T) {
	s := NewDerivedStrategy(&fakeSource{err: errors.New("db down")}, notify.NewDeriver(nil), "1")
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
