package fleetwatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robofleet/fleetwatch/internal/poller"
	"github.com/robofleet/fleetwatch/internal/store"
	"github.com/robofleet/fleetwatch/telemetry"
)

const (
	defaultGeneralInterval = 5 * time.Second
	defaultMotorInterval   = 1 * time.Second
	defaultRequestTimeout  = 10 * time.Second
)

// motorPoller abstracts the [poller.Worker] so construction can be swapped
// in tests to simulate an environment where the isolated poller is
// unavailable.
type motorPoller interface {
	Run(ctx context.Context)
	Shutdown()
	Send(poller.Command)
	Results() <-chan poller.Result
}

// workerFactory builds the background motor poller. An error here is not
// fatal: the orchestrator degrades to the fallback poller.
type workerFactory func(client *poller.Client, interval time.Duration, logger *slog.Logger) (motorPoller, error)

func defaultWorkerFactory(client *poller.Client, interval time.Duration, logger *slog.Logger) (motorPoller, error) {
	return poller.NewWorker(client, interval, logger), nil
}

// FleetWatch is the orchestrator for fleet telemetry acquisition.
//
// FleetWatch runs two loops at independent cadences against the fleet API:
// a slow general-status loop (connectivity, robot status, device status)
// in its own scheduling context, and a fast motor telemetry loop isolated
// in a background [poller.Worker]. If the worker cannot be constructed,
// a same-context [poller.Fallback] takes its place at the motor cadence,
// degraded but functional, with no further attempt to start the worker.
//
// All incoming results are merged into a versioned snapshot store by a
// single goroutine; consumers read consistent copies via
// [FleetWatch.Snapshot] and detect freshness via [FleetWatch.Keys] or a
// [FleetWatch.Subscribe] channel.
//
// The typical lifecycle is:
//
//	fw, err := fleetwatch.New(fleetwatch.WithBaseURL("http://fleet:8000"))
//	if err != nil {
//	    slog.Error("failed to create fleetwatch", "error", err)
//	    os.Exit(1)
//	}
//
//	if err := fw.Start(ctx); err != nil {
//	    ...
//	}
//	defer fw.Stop()
type FleetWatch struct {
	baseURL         string
	generalInterval time.Duration
	motorInterval   time.Duration
	requestTimeout  time.Duration
	useWorker       bool
	logger          *slog.Logger
	updateCallbacks []func(telemetry.Update)
	newWorker       workerFactory

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	client   *poller.Client
	store    *store.SnapshotStore
	worker   motorPoller
	fallback *poller.Fallback
}

// New creates a [FleetWatch] with the given options.
//
// [WithBaseURL] is required. Defaults:
//   - General-status interval: 5 seconds
//   - Motor telemetry interval: 1 second
//   - Background poller: enabled
//   - Request timeout: 10 seconds
//
// Returns an error if no base URL is configured or any option is invalid.
func New(opts ...Option) (*FleetWatch, error) {
	cfg := &fwConfig{
		generalInterval: defaultGeneralInterval,
		motorInterval:   defaultMotorInterval,
		requestTimeout:  defaultRequestTimeout,
		useWorker:       true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.baseURL == "" {
		return nil, ErrNoBaseURL
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FleetWatch{
		baseURL:         cfg.baseURL,
		generalInterval: cfg.generalInterval,
		motorInterval:   cfg.motorInterval,
		requestTimeout:  cfg.requestTimeout,
		useWorker:       cfg.useWorker,
		logger:          logger,
		updateCallbacks: cfg.updateCallbacks,
		newWorker:       defaultWorkerFactory,
		store:           store.NewSnapshotStore(),
	}, nil
}

// Start launches the polling loops. Start is non-blocking: the general
// loop issues one immediate fetch and then runs at the general interval,
// while motor telemetry flows in from the background worker (or the
// fallback poller when the worker is unavailable).
//
// The context bounds the whole run; cancelling it has the same effect as
// calling [FleetWatch.Stop]. Start is idempotent and a no-op after Stop.
func (fw *FleetWatch) Start(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.started || fw.stopped {
		return nil
	}
	fw.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	fw.cancel = cancel
	fw.client = poller.NewClient(fw.baseURL, fw.requestTimeout)

	motorResults := fw.startMotorPolling(runCtx)

	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		fw.run(runCtx, motorResults)
	}()

	fw.logger.Info("fleetwatch started",
		"base_url", fw.baseURL,
		"general_interval", fw.generalInterval.String(),
		"motor_interval", fw.motorInterval.String(),
	)
	return nil
}

// startMotorPolling brings up the background worker, or the fallback if
// the worker cannot be constructed. Worker construction is attempted
// exactly once; a failure is logged, not propagated.
func (fw *FleetWatch) startMotorPolling(ctx context.Context) <-chan poller.Result {
	if fw.useWorker {
		worker, err := fw.newWorker(fw.client, fw.motorInterval, fw.logger)
		if err == nil {
			fw.worker = worker
			worker.Run(ctx)
			worker.Send(poller.Command{Kind: poller.CommandStart})
			return worker.Results()
		}
		fw.logger.Warn("background poller unavailable, using fallback", "error", err)
	}

	fw.fallback = poller.NewFallback(fw.client, fw.motorInterval, fw.logger)
	fw.fallback.Start(ctx)
	return fw.fallback.Results()
}

// Stop halts both loops and waits for them to exit. After Stop returns, no
// further fetches are issued and all timers are released. Stop is
// idempotent and safe to call before Start.
func (fw *FleetWatch) Stop() {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		fw.wg.Wait()
		return
	}
	fw.stopped = true
	if fw.cancel != nil {
		fw.cancel()
	}
	worker, fallback, client := fw.worker, fw.fallback, fw.client
	fw.mu.Unlock()

	if worker != nil {
		worker.Shutdown()
	}
	if fallback != nil {
		fallback.Stop()
	}
	fw.wg.Wait()

	if client != nil {
		client.Close()
	}
	fw.logger.Info("fleetwatch stopped")
}

// Snapshot returns a deep copy of the current telemetry snapshot.
func (fw *FleetWatch) Snapshot() telemetry.Snapshot {
	return fw.store.Snapshot()
}

// Keys returns the current update keys. A key advances by exactly 1 per
// merged update of its class, so consumers can poll Keys to detect fresh
// data without comparing snapshots.
func (fw *FleetWatch) Keys() telemetry.UpdateKeys {
	return fw.store.Keys()
}

// Subscribe returns a channel of change notifications. The channel is
// buffered and slow consumers miss updates rather than stalling the merge
// path. Call [FleetWatch.Unsubscribe] when done.
func (fw *FleetWatch) Subscribe() <-chan telemetry.Update {
	return fw.store.Subscribe()
}

// Unsubscribe releases a subscription obtained from [FleetWatch.Subscribe].
func (fw *FleetWatch) Unsubscribe(ch <-chan telemetry.Update) {
	fw.store.Unsubscribe(ch)
}

// PollMotorsNow asks the background worker for an immediate motor fetch,
// cancelling its pending timer. Fire-and-forget: there is no matching
// response to wait for, and the call is a no-op in fallback mode or after
// Stop.
func (fw *FleetWatch) PollMotorsNow() {
	fw.mu.Lock()
	worker := fw.worker
	fw.mu.Unlock()
	if worker != nil {
		worker.Send(poller.Command{Kind: poller.CommandPoll})
	}
}

// SetMotorInterval replaces the background worker's scheduling interval,
// taking effect on its next reschedule. Non-positive intervals are
// ignored by the worker. No-op in fallback mode, whose cadence is fixed.
func (fw *FleetWatch) SetMotorInterval(d time.Duration) {
	fw.mu.Lock()
	worker := fw.worker
	fw.mu.Unlock()
	if worker != nil {
		worker.Send(poller.Command{Kind: poller.CommandSetInterval, Interval: d})
	}
}

// run is the orchestrator's single-writer loop: it owns every merge into
// the snapshot store, so no locking discipline is demanded of the pollers.
func (fw *FleetWatch) run(ctx context.Context, motorResults <-chan poller.Result) {
	fw.generalCycle(ctx)

	ticker := time.NewTicker(fw.generalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fw.generalCycle(ctx)

		case result, ok := <-motorResults:
			if !ok {
				// poller shut down; rely on ctx for exit
				motorResults = nil
				continue
			}
			fw.handleMotorResult(result)
		}
	}
}

// generalCycle performs one general-status fetch. Failures set the visible
// error state and never stop the loop; the next tick still fires.
func (fw *FleetWatch) generalCycle(ctx context.Context) {
	upd, err := fw.client.FetchGeneral(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fw.logger.Warn("general status fetch failed", "error", err.Error())
		note := fw.store.SetGeneralError(err.Error(), time.Now())
		fw.notifyCallbacks(note)
		return
	}

	note := fw.store.MergeGeneral(upd)
	fw.logger.Debug("general status merged",
		"robots", len(upd.RobotStatus),
		"update_key", note.Keys.General,
	)
	fw.notifyCallbacks(note)
}

// handleMotorResult merges a successful motor fetch. Error results are
// expected, frequent, and deliberately invisible: they are logged at debug
// level and set no error state.
func (fw *FleetWatch) handleMotorResult(result poller.Result) {
	if result.Kind == poller.ResultError {
		fw.logger.Debug("motor fetch failed", "error", result.Err)
		return
	}

	note := fw.store.MergeMotor(&poller.MotorUpdate{
		Connectivity: result.Connectivity,
		Motors:       result.Motors,
		FetchedAt:    result.Timestamp,
	})
	fw.notifyCallbacks(note)
}

// notifyCallbacks invokes registered update callbacks with panic recovery.
// A panicking callback is logged with a correlation ID and never takes the
// merge loop down with it.
func (fw *FleetWatch) notifyCallbacks(u telemetry.Update) {
	for _, cb := range fw.updateCallbacks {
		fw.invokeCallbackSafe(cb, u)
	}
}

func (fw *FleetWatch) invokeCallbackSafe(cb func(telemetry.Update), u telemetry.Update) {
	defer func() {
		if r := recover(); r != nil {
			fw.logger.Error("update callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"class", u.Class,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(u)
}
