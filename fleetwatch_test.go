package fleetwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robofleet/fleetwatch/internal/poller"
	"github.com/robofleet/fleetwatch/telemetry"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fleetServer simulates the fleet API with independently failable motor
// and general paths.
type fleetServer struct {
	*httptest.Server
	motorHits   atomic.Int64
	generalHits atomic.Int64
	failMotor   atomic.Bool
	failGeneral atomic.Bool
}

func newFleetServer(t *testing.T) *fleetServer {
	t.Helper()
	fs := &fleetServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("type") {
		case "motor":
			fs.motorHits.Add(1)
			if fs.failMotor.Load() {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{
				"ping_status": {"base1": true},
				"motor_data": {"base1": {
					"motor1": {"pos_rad": 1.57, "vel_rpm": 120.5, "current": 2.3},
					"motor2": {"pos_rad": 2.14, "vel_rpm": 135.2, "current": 2.7}
				}}
			}`))
		case "general":
			fs.generalHits.Add(1)
			if fs.failGeneral.Load() {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{
				"ping_status": {"base1": true},
				"robot_status": {"base1": {
					"working_status": "cleaning",
					"battery_soc": 87.5,
					"is_cleaning": true,
					"soft_estop_engaged": false
				}},
				"cleaning_device_status": {"base1": {"rear": 1.2, "front": 0.9}}
			}`))
		default:
			http.Error(w, "unknown type", http.StatusBadRequest)
		}
	}))
	t.Cleanup(fs.Server.Close)
	return fs
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, deadline time.Duration, msg string) {
	t.Helper()
	stop := time.After(deadline)
	for {
		if cond() {
			return
		}
		select {
		case <-stop:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestWatch(t *testing.T, fs *fleetServer, opts ...Option) *FleetWatch {
	t.Helper()
	base := []Option{
		WithBaseURL(fs.URL),
		WithGeneralInterval(30 * time.Millisecond),
		WithMotorInterval(15 * time.Millisecond),
		WithLogger(testLogger()),
	}
	fw, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return fw
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New()
	if !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("expected ErrNoBaseURL, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	fw, err := New(WithBaseURL("http://fleet:8000"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if fw.generalInterval != 5*time.Second {
		t.Errorf("default general interval = %v", fw.generalInterval)
	}
	if fw.motorInterval != time.Second {
		t.Errorf("default motor interval = %v", fw.motorInterval)
	}
	if !fw.useWorker {
		t.Error("background poller should default to enabled")
	}
}

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero general interval", WithGeneralInterval(0)},
		{"negative motor interval", WithMotorInterval(-time.Second)},
		{"zero request timeout", WithRequestTimeout(0)},
		{"nil logger", WithLogger(nil)},
		{"nil callback", WithUpdateCallback(nil)},
		{"empty base url", WithBaseURL("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(WithBaseURL("http://fleet:8000"), tt.opt); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFleetWatch_MergesBothDataClasses(t *testing.T) {
	fs := newFleetServer(t)
	fw := newTestWatch(t, fs)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool {
		k := fw.Keys()
		return k.General >= 1 && k.Motor >= 1
	}, 2*time.Second, "timeout waiting for both data classes to merge")

	snap := fw.Snapshot()
	if !snap.Connectivity["base1"] {
		t.Errorf("unexpected connectivity: %+v", snap.Connectivity)
	}
	if snap.RobotStatus["base1"].BatterySOC != 87.5 {
		t.Errorf("unexpected robot status: %+v", snap.RobotStatus)
	}
	rec := snap.MotorData["base1"]
	if rec.Motor1.Current == nil || *rec.Motor1.Current != 2.3 {
		t.Errorf("unexpected motor data: %+v", rec)
	}
	if snap.LastError != nil {
		t.Errorf("unexpected error state: %q", *snap.LastError)
	}
}

// TestFleetWatch_GeneralFailureIsVisible verifies the asymmetric error
// policy: general fetch failures surface in the snapshot and the loop
// keeps running.
func TestFleetWatch_GeneralFailureIsVisible(t *testing.T) {
	fs := newFleetServer(t)
	fs.failGeneral.Store(true)
	fw := newTestWatch(t, fs)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool {
		return fw.Snapshot().LastError != nil
	}, 2*time.Second, "timeout waiting for visible error state")

	if fw.Keys().General != 0 {
		t.Error("failed fetches must not advance the general update key")
	}

	// the loop keeps ticking
	waitFor(t, func() bool {
		return fs.generalHits.Load() >= 3
	}, 2*time.Second, "general loop stopped after failures")

	// recovery clears the error
	fs.failGeneral.Store(false)
	waitFor(t, func() bool {
		return fw.Snapshot().LastError == nil
	}, 2*time.Second, "error state not cleared after recovery")
}

// TestFleetWatch_MotorFailuresAreSilent verifies that motor-only failures
// never surface a visible error and never advance the motor key.
func TestFleetWatch_MotorFailuresAreSilent(t *testing.T) {
	fs := newFleetServer(t)
	fs.failMotor.Store(true)
	fw := newTestWatch(t, fs)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool {
		return fs.motorHits.Load() >= 3 && fw.Keys().General >= 1
	}, 2*time.Second, "timeout waiting for motor fetch attempts")

	snap := fw.Snapshot()
	if snap.LastError != nil {
		t.Errorf("motor failures must stay invisible, got %q", *snap.LastError)
	}
	if fw.Keys().Motor != 0 {
		t.Error("failed motor fetches must not advance the motor update key")
	}
}

// TestFleetWatch_FallbackWhenWorkerUnavailable verifies graceful
// degradation: when the background poller cannot be constructed, the
// fallback poller delivers motor data at the motor cadence.
func TestFleetWatch_FallbackWhenWorkerUnavailable(t *testing.T) {
	fs := newFleetServer(t)
	fw := newTestWatch(t, fs)
	fw.newWorker = func(*poller.Client, time.Duration, *slog.Logger) (motorPoller, error) {
		return nil, errors.New("isolated context unavailable")
	}

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	if fw.worker != nil {
		t.Error("worker must stay nil after a failed factory")
	}
	if fw.fallback == nil {
		t.Fatal("expected fallback poller to be active")
	}

	waitFor(t, func() bool {
		return fw.Keys().Motor >= 2
	}, 2*time.Second, "timeout waiting for fallback motor merges")
}

// TestFleetWatch_FallbackKeepsPollingThroughFailures is the degraded-mode
// end-to-end: background poller unavailable, the motor endpoint failing
// repeatedly, and the fallback still fetching on its fixed cadence with
// no backoff, unlike the worker.
func TestFleetWatch_FallbackKeepsPollingThroughFailures(t *testing.T) {
	fs := newFleetServer(t)
	fs.failMotor.Store(true)
	fw := newTestWatch(t, fs, WithMotorInterval(25*time.Millisecond))
	fw.newWorker = func(*poller.Client, time.Duration, *slog.Logger) (motorPoller, error) {
		return nil, errors.New("isolated context unavailable")
	}

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	// 4+ fetch attempts within ~8 nominal intervals shows the cadence
	// did not stretch after 3 consecutive failures
	waitFor(t, func() bool {
		return fs.motorHits.Load() >= 4
	}, 200*time.Millisecond, "fallback slowed down or stopped under failures")

	if fw.Keys().Motor != 0 || fw.Snapshot().LastError != nil {
		t.Error("failing motor fetches must stay silent in fallback mode too")
	}
}

func TestFleetWatch_StopTwice(t *testing.T) {
	fs := newFleetServer(t)
	fw := newTestWatch(t, fs)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool { return fw.Keys().General >= 1 }, 2*time.Second, "no merge before stop")

	fw.Stop()
	fw.Stop() // must not panic or deadlock

	// no further fetches after Stop returns
	motor, general := fs.motorHits.Load(), fs.generalHits.Load()
	time.Sleep(80 * time.Millisecond)
	if fs.motorHits.Load() != motor || fs.generalHits.Load() != general {
		t.Error("fetches continued after Stop")
	}

	// commands after Stop are no-ops
	fw.PollMotorsNow()
	fw.SetMotorInterval(time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if fs.motorHits.Load() != motor {
		t.Error("PollMotorsNow after Stop issued a fetch")
	}
}

func TestFleetWatch_StopBeforeStart(t *testing.T) {
	fw, err := New(WithBaseURL("http://fleet:8000"), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// must not panic
	fw.Stop()

	// Start after Stop is a no-op
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start after Stop should be a silent no-op, got %v", err)
	}
}

func TestFleetWatch_PollMotorsNow(t *testing.T) {
	fs := newFleetServer(t)
	// hour-long cadence: only the initial fetch and forced polls hit
	fw := newTestWatch(t, fs, WithMotorInterval(time.Hour))

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool { return fw.Keys().Motor >= 1 }, 2*time.Second, "no initial motor merge")

	fw.PollMotorsNow()
	waitFor(t, func() bool { return fw.Keys().Motor >= 2 }, 2*time.Second, "forced poll did not merge")

	if got := fs.motorHits.Load(); got != 2 {
		t.Errorf("expected exactly 2 motor fetches, got %d", got)
	}
}

// TestFleetWatch_UpdateCallbacks verifies callback delivery and that a
// panicking callback cannot stop the merge loop.
func TestFleetWatch_UpdateCallbacks(t *testing.T) {
	fs := newFleetServer(t)

	var motorSeen, generalSeen atomic.Int64
	fw := newTestWatch(t, fs,
		WithUpdateCallback(func(u telemetry.Update) {
			panic("misbehaving consumer")
		}),
		WithUpdateCallback(func(u telemetry.Update) {
			switch u.Class {
			case telemetry.UpdateMotor:
				motorSeen.Add(1)
			case telemetry.UpdateGeneral:
				generalSeen.Add(1)
			}
		}),
	)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool {
		return motorSeen.Load() >= 2 && generalSeen.Load() >= 1
	}, 2*time.Second, "callbacks not invoked despite a panicking sibling")
}

func TestFleetWatch_SubscribeReceivesMerges(t *testing.T) {
	fs := newFleetServer(t)
	fw := newTestWatch(t, fs)

	ch := fw.Subscribe()
	defer fw.Unsubscribe(ch)

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	seen := map[telemetry.UpdateClass]bool{}
	deadline := time.After(2 * time.Second)
	for !(seen[telemetry.UpdateGeneral] && seen[telemetry.UpdateMotor]) {
		select {
		case u := <-ch:
			seen[u.Class] = true
		case <-deadline:
			t.Fatalf("timeout; saw %v", seen)
		}
	}
}
