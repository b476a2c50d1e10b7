// Package prefs owns the email alert preference record: one master switch
// and three reminder thresholds, kept consistent by two cascade rules.
// Turning the master on turns every threshold on; turning the last
// threshold off turns the master off. Each mutation entry point applies
// only its own cascade.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/sync"
)

// ErrUnknownThreshold rejects a threshold name outside the fixed set.
var ErrUnknownThreshold = errors.New("unknown threshold")

// Threshold names one of the reminder lead times.
type Threshold string

const (
	Threshold7Days Threshold = "7days"
	Threshold3Days Threshold = "3days"
	Threshold1Day  Threshold = "1day"
)

// Remote is the slice of the upstream core API the reconciler writes through.
type Remote interface {
	EmailSettings(ctx context.Context, userID string) (notify.EmailSettings, error)
	UpdateEmailSettings(ctx context.Context, userID string, update notify.EmailSettingsUpdate) (notify.EmailSettings, error)
}

// Reconciler applies preference changes optimistically through the shared
// command runner. A single logical toggle and its cascade side effects go
// upstream in one partial write; a failed write restores every touched
// field, cascades included.
type Reconciler struct {
	runner *sync.Runner
	remote Remote
	userID string
	logger *zap.Logger

	// guarded by runner's lock
	settings notify.EmailSettings
}

// NewReconciler builds a Reconciler sharing runner with the sync layer.
func NewReconciler(runner *sync.Runner, remote Remote, userID string, logger *zap.Logger) *Reconciler {
	return &Reconciler{runner: runner, remote: remote, userID: userID, logger: logger}
}

// Load fetches the current preference record. Called once at session start.
func (r *Reconciler) Load(ctx context.Context) error {
	s, err := r.remote.EmailSettings(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("load email settings: %w", err)
	}
	r.runner.Lock()
	r.settings = s
	r.runner.Unlock()
	return nil
}

// Settings returns the current preference record.
func (r *Reconciler) Settings() notify.EmailSettings {
	r.runner.Lock()
	defer r.runner.Unlock()
	return r.settings
}

// SetMaster toggles the master switch. Enabling cascades down: all three
// thresholds turn on in the same write. Disabling writes only the master
// field; the thresholds keep their stored values for the next enable.
func (r *Reconciler) SetMaster(ctx context.Context, enabled bool) (notify.EmailSettings, error) {
	var (
		update    notify.EmailSettingsUpdate
		canonical notify.EmailSettings
	)
	err := r.runner.Run(ctx, sync.Command{
		Name: "set_master",
		Apply: func() func() {
			prev := r.settings
			r.settings.EmailAlertEnabled = enabled
			update = notify.EmailSettingsUpdate{EmailAlertEnabled: boolPtr(enabled)}
			if enabled {
				r.settings.Alert7Days = true
				r.settings.Alert3Days = true
				r.settings.Alert1Day = true
				update.Alert7Days = boolPtr(true)
				update.Alert3Days = boolPtr(true)
				update.Alert1Day = boolPtr(true)
			}
			return func() { r.settings = prev }
		},
		Persist: func(ctx context.Context) error {
			got, err := r.remote.UpdateEmailSettings(ctx, r.userID, update)
			if err != nil {
				return err
			}
			canonical = got
			return nil
		},
		Reconcile: func() { r.settings = canonical },
	})
	if err != nil {
		return r.Settings(), err
	}
	return canonical, nil
}

// SetThreshold toggles one reminder threshold. Disabling the last enabled
// threshold cascades up: the master turns off in the same write. Enabling a
// threshold never touches the master.
func (r *Reconciler) SetThreshold(ctx context.Context, th Threshold, enabled bool) (notify.EmailSettings, error) {
	switch th {
	case Threshold7Days, Threshold3Days, Threshold1Day:
	default:
		return r.Settings(), fmt.Errorf("%w: %q", ErrUnknownThreshold, th)
	}

	var (
		update    notify.EmailSettingsUpdate
		canonical notify.EmailSettings
	)
	err := r.runner.Run(ctx, sync.Command{
		Name: "set_threshold",
		Apply: func() func() {
			prev := r.settings
			update = notify.EmailSettingsUpdate{}
			switch th {
			case Threshold7Days:
				r.settings.Alert7Days = enabled
				update.Alert7Days = boolPtr(enabled)
			case Threshold3Days:
				r.settings.Alert3Days = enabled
				update.Alert3Days = boolPtr(enabled)
			case Threshold1Day:
				r.settings.Alert1Day = enabled
				update.Alert1Day = boolPtr(enabled)
			}
			if !enabled && !r.settings.Alert7Days && !r.settings.Alert3Days && !r.settings.Alert1Day {
				r.settings.EmailAlertEnabled = false
				update.EmailAlertEnabled = boolPtr(false)
			}
			return func() { r.settings = prev }
		},
		Persist: func(ctx context.Context) error {
			got, err := r.remote.UpdateEmailSettings(ctx, r.userID, update)
			if err != nil {
				return err
			}
			canonical = got
			return nil
		},
		Reconcile: func() { r.settings = canonical },
	})
	if err != nil {
		return r.Settings(), err
	}
	return canonical, nil
}

func boolPtr(b bool) *bool { return &b }
