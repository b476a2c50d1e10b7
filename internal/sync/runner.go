// Package sync keeps the local notification session and the upstream core
// API in agreement. Mutations apply locally first, then write upstream; a
// failed write rolls the local state back to the pre-mutation snapshot, so
// the panel never shows a state the server refused.
package sync

import (
	"context"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/metrics"
)

// Command is one reversible mutation. Apply changes local state and returns
// a restore closure; Persist writes the same change upstream; Reconcile, if
// set, folds the server's canonical response back into local state.
type Command struct {
	Name      string
	Apply     func() (restore func())
	Persist   func(ctx context.Context) error
	Reconcile func()
}

// Runner serializes reversible commands. All sync and preference mutations
// for the session share one Runner, so a rollback never races a later
// optimistic apply.
type Runner struct {
	mu     stdsync.Mutex
	logger *zap.Logger
}

// NewRunner returns a Runner logging rollbacks through logger.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes cmd: apply locally, persist upstream, reconcile on success,
// restore the snapshot on failure. The returned error is the persist error.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	restore := cmd.Apply()
	if err := cmd.Persist(ctx); err != nil {
		restore()
		metrics.RecordRollback(cmd.Name)
		r.logger.Warn("mutation rolled back",
			zap.String("op", cmd.Name),
			zap.Error(err))
		return err
	}
	if cmd.Reconcile != nil {
		cmd.Reconcile()
	}
	return nil
}

// Lock takes the runner's mutex directly, for callers that need to read or
// swap local state atomically with respect to in-flight commands.
func (r *Runner) Lock()   { r.mu.Lock() }
func (r *Runner) Unlock() { r.mu.Unlock() }
