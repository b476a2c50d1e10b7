// Package refresh drives the periodic notification resolution loop and the
// two resolution strategies behind it: the server feed in remote mode, local
// derivation from the subscription list in derived mode.
package refresh

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	notifysync "github.com/nextbill/gateway/internal/sync"
)

// Refresher ticks the sync layer's refresh on a fixed interval. Manual
// refreshes from the API go through the same sync entry point, so both
// paths share the staleness guard.
type Refresher struct {
	client   *notifysync.Client
	interval time.Duration
	logger   *zap.Logger
}

// New builds a Refresher. A zero interval defaults to one hour.
func New(client *notifysync.Client, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval == 0 {
		interval = time.Hour
	}
	return &Refresher{client: client, interval: interval, logger: logger}
}

// Start runs one immediate refresh and then one per interval until ctx is
// cancelled. Failures are logged and the loop keeps going; a superseded
// refresh is not a failure.
func (r *Refresher) Start(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if err := r.client.Refresh(ctx); err != nil {
		if errors.Is(err, notifysync.ErrStaleRefresh) {
			return
		}
		r.logger.Warn("periodic refresh failed", zap.Error(err))
	}
}
