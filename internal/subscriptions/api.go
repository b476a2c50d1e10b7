package subscriptions

import (
	"context"

	"github.com/nextbill/gateway/internal/notify"
)

// Lister is the upstream endpoint an APISource reads through.
type Lister interface {
	Subscriptions(ctx context.Context, userID string) ([]notify.Subscription, error)
}

// APISource serves the subscription list from the core API instead of a
// direct database connection. Used when the gateway runs without DB access.
type APISource struct {
	lister Lister
}

// NewAPISource wraps lister as a subscription source.
func NewAPISource(lister Lister) *APISource {
	return &APISource{lister: lister}
}

// Active lists the user's unpaused subscriptions.
func (s *APISource) Active(ctx context.Context, userID string) ([]notify.Subscription, error) {
	return s.lister.Subscriptions(ctx, userID)
}
