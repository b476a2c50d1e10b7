package refresh

import (
	"context"
	"fmt"

	"github.com/nextbill/gateway/internal/notify"
	notifysync "github.com/nextbill/gateway/internal/sync"
)

// Feed is the slice of the upstream core API remote mode reads from.
type Feed interface {
	Notifications(ctx context.Context, userID string) ([]notify.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// RemoteStrategy treats the server as the source of truth: the feed and the
// unread counter replace local state wholesale, no merging.
type RemoteStrategy struct {
	feed   Feed
	userID string
}

// NewRemoteStrategy builds a RemoteStrategy for userID.
func NewRemoteStrategy(feed Feed, userID string) *RemoteStrategy {
	return &RemoteStrategy{feed: feed, userID: userID}
}

func (s *RemoteStrategy) Refresh(ctx context.Context) (notifysync.Result, error) {
	list, err := s.feed.Notifications(ctx, s.userID)
	if err != nil {
		return notifysync.Result{}, fmt.Errorf("fetch feed: %w", err)
	}
	unread, err := s.feed.UnreadCount(ctx, s.userID)
	if err != nil {
		return notifysync.Result{}, fmt.Errorf("fetch unread count: %w", err)
	}
	return notifysync.Result{List: list, Unread: unread}, nil
}

// Source lists the subscriptions reminders are derived from.
type Source interface {
	Active(ctx context.Context, userID string) ([]notify.Subscription, error)
}

// DerivedStrategy derives payment reminders locally from the subscription
// list. Candidates are handed back as a merge result: the sync layer dedupes
// them against the store's contents at apply time, under the mutation lock.
type DerivedStrategy struct {
	source  Source
	deriver *notify.Deriver
	userID  string
}

// NewDerivedStrategy builds a DerivedStrategy for userID.
func NewDerivedStrategy(source Source, deriver *notify.Deriver, userID string) *DerivedStrategy {
	return &DerivedStrategy{source: source, deriver: deriver, userID: userID}
}

func (s *DerivedStrategy) Refresh(ctx context.Context) (notifysync.Result, error) {
	subs, err := s.source.Active(ctx, s.userID)
	if err != nil {
		return notifysync.Result{}, fmt.Errorf("fetch subscriptions: %w", err)
	}
	return notifysync.Result{List: s.deriver.Derive(subs), Unread: -1, Merge: true}, nil
}
