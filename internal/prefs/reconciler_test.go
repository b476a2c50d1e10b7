package prefs

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/sync"
)

type fakeRemote struct {
	settings  notify.EmailSettings
	updateErr error
	updates   []notify.EmailSettingsUpdate
}

func (f *fakeRemote) EmailSettings(context.Context, string) (notify.EmailSettings, error) {
	return f.settings, nil
}

func (f *fakeRemote) UpdateEmailSettings(_ context.Context, _ string, update notify.EmailSettingsUpdate) (notify.EmailSettings, error) {
	f.updates = append(f.updates, update)
	if f.updateErr != nil {
		return notify.EmailSettings{}, f.updateErr
	}
	if update.EmailAlertEnabled != nil {
		f.settings.EmailAlertEnabled = *update.EmailAlertEnabled
	}
	if update.Alert7Days != nil {
		f.settings.Alert7Days = *update.Alert7Days
	}
	if update.Alert3Days != nil {
		f.settings.Alert3Days = *update.Alert3Days
	}
	if update.Alert1Day != nil {
		f.settings.Alert1Day = *update.Alert1Day
	}
	return f.settings, nil
}

func newTestReconciler(t *testing.T, initial notify.EmailSettings) (*Reconciler, *fakeRemote) {
	t.Helper()
	rm := &fakeRemote{settings: initial}
	r := NewReconciler(sync.NewRunner(zap.NewNop()), rm, "1", zap.NewNop())
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r, rm
}

func TestEnableMasterCascadesDown(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{})

	got, err := r.SetMaster(context.Background(), true)
	if err != nil {
		t.Fatalf("SetMaster: %v", err)
	}
	want := notify.EmailSettings{EmailAlertEnabled: true, Alert7Days: true, Alert3Days: true, Alert1Day: true}
	if got != want {
		t.Errorf("settings = %+v, want all enabled", got)
	}
	if len(rm.updates) != 1 {
		t.Fatalf("updates = %d, want a single write", len(rm.updates))
	}
	u := rm.updates[0]
	if u.EmailAlertEnabled == nil || u.Alert7Days == nil || u.Alert3Days == nil || u.Alert1Day == nil {
		t.Errorf("cascade fields missing from the write: %+v", u)
	}
}

func TestDisableMasterWritesOnlyMaster(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{
		EmailAlertEnabled: true, Alert7Days: true, Alert3Days: false, Alert1Day: true,
	})

	got, err := r.SetMaster(context.Background(), false)
	if err != nil {
		t.Fatalf("SetMaster: %v", err)
	}
	if got.EmailAlertEnabled {
		t.Error("master still enabled")
	}
	if !got.Alert7Days || !got.Alert1Day {
		t.Errorf("threshold values lost on master disable: %+v", got)
	}
	u := rm.updates[0]
	if u.Alert7Days != nil || u.Alert3Days != nil || u.Alert1Day != nil {
		t.Errorf("master disable wrote threshold fields: %+v", u)
	}
}

func TestDisablingLastThresholdCascadesUp(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{
		EmailAlertEnabled: true, Alert1Day: true,
	})

	got, err := r.SetThreshold(context.Background(), Threshold1Day, false)
	if err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if got.EmailAlertEnabled {
		t.Error("master survived losing its last threshold")
	}
	u := rm.updates[0]
	if u.Alert1Day == nil || u.EmailAlertEnabled == nil {
		t.Errorf("cascade write incomplete: %+v", u)
	}
	if u.Alert7Days != nil || u.Alert3Days != nil {
		t.Errorf("untouched thresholds written: %+v", u)
	}
}

func TestDisablingOneOfManyThresholdsLeavesMaster(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{
		EmailAlertEnabled: true, Alert7Days: true, Alert3Days: true, Alert1Day: true,
	})

	got, err := r.SetThreshold(context.Background(), Threshold3Days, false)
	if err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if !got.EmailAlertEnabled {
		t.Error("master disabled while other thresholds remain")
	}
	if u := rm.updates[0]; u.EmailAlertEnabled != nil {
		t.Errorf("master written without a cascade: %+v", u)
	}
}

func TestEnablingThresholdNeverTouchesMaster(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{})

	got, err := r.SetThreshold(context.Background(), Threshold7Days, true)
	if err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if got.EmailAlertEnabled {
		t.Error("enabling a threshold flipped the master")
	}
	if u := rm.updates[0]; u.EmailAlertEnabled != nil {
		t.Errorf("master field written: %+v", u)
	}
}

func TestRollbackRestoresCascadedFields(t *testing.T) {
	initial := notify.EmailSettings{EmailAlertEnabled: true, Alert1Day: true}
	r, rm := newTestReconciler(t, initial)
	rm.updateErr = errors.New("upstream down")

	_, err := r.SetThreshold(context.Background(), Threshold1Day, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := r.Settings(); got != initial {
		t.Errorf("settings = %+v after rollback, want %+v", got, initial)
	}

	_, err = r.SetMaster(context.Background(), true)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := r.Settings(); got != initial {
		t.Errorf("settings = %+v after master rollback, want %+v", got, initial)
	}
}

func TestUnknownThresholdRejected(t *testing.T) {
	r, rm := newTestReconciler(t, notify.EmailSettings{})
	if _, err := r.SetThreshold(context.Background(), Threshold("2weeks"), true); err == nil {
		t.Fatal("expected error")
	}
	if len(rm.updates) != 0 {
		t.Error("invalid threshold reached the upstream")
	}
}
