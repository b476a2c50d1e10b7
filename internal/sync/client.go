package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/metrics"
	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/remote"
	"github.com/nextbill/gateway/internal/store"
)

// ErrStaleRefresh is returned when a refresh response arrives after a newer
// refresh has already started. The stale result is discarded, never applied.
var ErrStaleRefresh = errors.New("refresh superseded by a newer one")

// Remote is the slice of the upstream core API the sync layer writes through.
type Remote interface {
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id, userID string) error
	ClearAll(ctx context.Context, userID string) error
	Create(ctx context.Context, userID string, req remote.CreateNotification) (notify.Notification, error)
	GeneratePaymentNotifications(ctx context.Context) error
}

// Result is what a strategy resolved. Merge selects how it is applied:
// false replaces local state wholesale, true treats List as candidates to
// dedupe and prepend. Either way the apply happens under the mutation
// lock, so a mutation that completed while the strategy was in flight is
// never reverted.
type Result struct {
	List   []notify.Notification
	Unread int // -1 recomputes from the applied list
	Merge  bool
}

// Strategy produces the next notification state on refresh. Implementations
// fetch either the server feed or the subscription list, depending on the
// configured mode.
type Strategy interface {
	Refresh(ctx context.Context) (Result, error)
}

// PersistFunc saves the session's notification list after a successful
// mutation or refresh. Best effort; failures are the persister's to log.
type PersistFunc func(ctx context.Context, list []notify.Notification)

// Config wires a Client. Mode labels refresh metrics; it carries no
// behavior.
type Config struct {
	Runner   *Runner
	Store    *store.Store
	Remote   Remote
	Strategy Strategy
	UserID   string
	Mode     string
	Persist  PersistFunc
	Logger   *zap.Logger
}

// Client applies notification mutations optimistically: local state changes
// first, the upstream write follows, and a failed write restores the exact
// pre-mutation snapshot. Refreshes are guarded by a monotonic sequence
// number so an old in-flight response can never clobber a newer one.
type Client struct {
	runner   *Runner
	store    *store.Store
	remote   Remote
	strategy Strategy
	userID   string
	mode     string
	persist  PersistFunc
	logger   *zap.Logger
	seq      atomic.Uint64
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		runner:   cfg.Runner,
		store:    cfg.Store,
		remote:   cfg.Remote,
		strategy: cfg.Strategy,
		userID:   cfg.UserID,
		mode:     cfg.Mode,
		persist:  cfg.Persist,
		logger:   cfg.Logger,
	}
}

// List returns the session's notifications in display order.
func (c *Client) List() []notify.Notification { return c.store.List() }

// UnreadCount returns the current unread counter.
func (c *Client) UnreadCount() int { return c.store.UnreadCount() }

// MarkRead marks one notification read locally, then upstream. A missing
// upstream record counts as success; any other upstream failure rolls the
// local change back.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.runner.Run(ctx, Command{
		Name: "mark_read",
		Apply: func() func() {
			snap := c.store.Snapshot()
			c.store.MarkRead(id)
			return func() { c.store.Restore(snap) }
		},
		Persist: func(ctx context.Context) error {
			return c.remote.MarkRead(ctx, id, c.userID)
		},
		Reconcile: func() { c.persistLocal(ctx) },
	})
}

// MarkAllRead marks every notification read with one shared read time.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.runner.Run(ctx, Command{
		Name: "mark_all_read",
		Apply: func() func() {
			snap := c.store.Snapshot()
			c.store.MarkAllRead()
			return func() { c.store.Restore(snap) }
		},
		Persist: func(ctx context.Context) error {
			return c.remote.MarkAllRead(ctx, c.userID)
		},
		Reconcile: func() { c.persistLocal(ctx) },
	})
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.runner.Run(ctx, Command{
		Name: "delete",
		Apply: func() func() {
			snap := c.store.Snapshot()
			c.store.Delete(id)
			return func() { c.store.Restore(snap) }
		},
		Persist: func(ctx context.Context) error {
			return c.remote.Delete(ctx, id, c.userID)
		},
		Reconcile: func() { c.persistLocal(ctx) },
	})
}

// ClearAll empties the panel.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.runner.Run(ctx, Command{
		Name: "clear_all",
		Apply: func() func() {
			snap := c.store.Snapshot()
			c.store.ClearAll()
			return func() { c.store.Restore(snap) }
		},
		Persist: func(ctx context.Context) error {
			return c.remote.ClearAll(ctx, c.userID)
		},
		Reconcile: func() { c.persistLocal(ctx) },
	})
}

// CreateSystem creates a system notification. Unlike the read-state
// mutations this is remote-first: the server mints the record, and only the
// server's canonical copy is inserted locally.
func (c *Client) CreateSystem(ctx context.Context, req remote.CreateNotification) (notify.Notification, error) {
	created, err := c.remote.Create(ctx, c.userID, req)
	if err != nil {
		return notify.Notification{}, fmt.Errorf("create system notification: %w", err)
	}
	c.runner.Lock()
	c.store.Insert(created)
	c.runner.Unlock()
	c.persistLocal(ctx)
	return created, nil
}

// GeneratePayment asks the server to run its payment-reminder batch job,
// then refreshes so the new reminders land in the session.
func (c *Client) GeneratePayment(ctx context.Context) error {
	if err := c.remote.GeneratePaymentNotifications(ctx); err != nil {
		return fmt.Errorf("generate payment notifications: %w", err)
	}
	return c.Refresh(ctx)
}

// Refresh resolves the next state through the configured strategy and
// applies it, unless a newer refresh started in the meantime. Stale results
// return ErrStaleRefresh and leave local state untouched. Merge results are
// deduped against whatever the store holds at apply time, not at fetch
// time, so mutations that landed mid-flight survive.
func (c *Client) Refresh(ctx context.Context) error {
	seq := c.seq.Add(1)

	res, err := c.strategy.Refresh(ctx)
	if err != nil {
		metrics.RecordRefresh(c.mode, "error")
		return fmt.Errorf("refresh: %w", err)
	}

	c.runner.Lock()
	if c.seq.Load() != seq {
		c.runner.Unlock()
		metrics.RecordRefresh(c.mode, "stale")
		c.logger.Debug("stale refresh discarded", zap.Uint64("seq", seq))
		return ErrStaleRefresh
	}
	if res.Merge {
		added := c.store.PrependNew(res.List)
		metrics.RecordRemindersDerived(added)
	} else {
		c.store.Replace(res.List, res.Unread)
	}
	c.runner.Unlock()
	metrics.RecordRefresh(c.mode, "ok")

	c.persistLocal(ctx)
	return nil
}

func (c *Client) persistLocal(ctx context.Context) {
	if c.persist == nil {
		return
	}
	c.persist(ctx, c.store.Raw())
}
