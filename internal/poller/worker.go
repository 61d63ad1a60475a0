package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robofleet/fleetwatch/telemetry"
)

// errorThreshold is the consecutive-failure count above which the worker
// stretches its schedule. backoffFactor is the single doubling applied once
// the threshold is exceeded; the interval never grows beyond that, so
// recovery is prompt as soon as the endpoint answers again.
const (
	errorThreshold = 3
	backoffFactor  = 2
)

// commandBufferSize bounds the inbound command queue. Commands are
// fire-and-forget; if the worker has terminated, sends are dropped rather
// than blocking the caller.
const commandBufferSize = 16

// CommandKind discriminates inbound worker commands.
type CommandKind int

const (
	// CommandStart begins the fetch loop. Ignored while already running.
	CommandStart CommandKind = iota

	// CommandStop halts the fetch loop and cancels any pending timer.
	// The worker stays alive and accepts a later CommandStart.
	CommandStop

	// CommandPoll forces an immediate fetch, cancelling the pending
	// timer. Ignored while stopped.
	CommandPoll

	// CommandSetInterval replaces the scheduling interval. Takes effect
	// on the next reschedule. Non-positive intervals are ignored, as is
	// the command itself while stopped.
	CommandSetInterval
)

// Command is an inbound message to the worker. Only CommandSetInterval
// uses the Interval field.
type Command struct {
	Kind     CommandKind
	Interval time.Duration
}

// ResultKind discriminates outbound worker results.
type ResultKind int

const (
	// ResultMotorData carries a successful motor fetch.
	ResultMotorData ResultKind = iota

	// ResultError carries the message text of a failed fetch.
	ResultError
)

// Result is an outbound message from the worker.
//
// Motors and Connectivity are populated only for ResultMotorData; Err only
// for ResultError. The maps are owned by the receiver; the worker never
// retains a reference after sending.
type Result struct {
	Kind         ResultKind
	Motors       map[string]telemetry.MotorRecord
	Connectivity map[string]bool
	Timestamp    time.Time
	Err          string
}

// PollerState is the scheduling state of a single poller loop.
//
// The state is owned by the loop that mutates it and is never shared;
// callers observe it only through copies.
type PollerState struct {
	// Running reports whether the fetch loop is active.
	Running bool

	// ConsecutiveErrors counts fetch failures since the last success.
	ConsecutiveErrors int

	// Interval is the nominal time between fetches.
	Interval time.Duration
}

// nextDelay returns the delay before the next fetch: the nominal interval,
// or double it once the consecutive-error count exceeds the threshold.
func nextDelay(s PollerState) time.Duration {
	if s.ConsecutiveErrors > errorThreshold {
		return backoffFactor * s.Interval
	}
	return s.Interval
}

// Worker is the isolated high-frequency motor poller.
//
// Worker runs its fetch loop in a dedicated goroutine that shares no
// mutable state with its owner: commands go in through [Worker.Send],
// results come out through [Worker.Results]. The loop is idle until it
// receives CommandStart, stops on CommandStop, and can be started again
// afterwards. [Worker.Shutdown] tears the goroutine down for good.
//
// On each cycle the worker fetches motor telemetry, emits a Result, and
// schedules the next cycle. Failures increment the consecutive-error count
// and, past a threshold of 3, double the delay until the next attempt;
// a single success restores the nominal cadence.
type Worker struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger

	commands chan Command
	results  chan Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewWorker creates a motor polling [Worker] with the given nominal
// interval. The worker does nothing until [Worker.Run] is called and a
// CommandStart is sent.
func NewWorker(client *Client, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:   client,
		interval: interval,
		logger:   logger,
		commands: make(chan Command, commandBufferSize),
		results:  make(chan Result, commandBufferSize),
	}
}

// Results returns the receive-only result channel. The channel is closed
// by [Worker.Shutdown].
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Send delivers a command to the worker without blocking.
//
// Send is fire-and-forget: after Shutdown, or if the command buffer is
// full, the command is dropped. Callers must not depend on a matching
// result for any individual command.
func (w *Worker) Send(cmd Command) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	select {
	case w.commands <- cmd:
	default:
		w.logger.Warn("worker command dropped, buffer full", "kind", cmd.Kind)
	}
}

// Run launches the worker goroutine. Run is non-blocking and idempotent;
// calling it after Shutdown is a no-op.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	loopCtx := w.ctx // capture under lock to avoid race
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer w.closeOnce.Do(func() { close(w.results) })
		w.loop(loopCtx)
	}()
}

// Shutdown cancels the worker goroutine, waits for it to exit, and closes
// the result channel. Shutdown is idempotent and safe before Run.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		if w.cancel != nil {
			w.cancel()
		}
	}
	w.mu.Unlock()

	w.wg.Wait()

	// ensure the channel closes even if Run was never called
	w.closeOnce.Do(func() { close(w.results) })
}

// loop is the worker's single-goroutine state machine. All scheduling
// state lives in local variables; the pending timer is explicitly stopped
// on every path that invalidates it, so a cancelled cycle can never fire.
func (w *Worker) loop(ctx context.Context) {
	state := PollerState{Interval: w.interval}

	var timer *time.Timer
	var timerC <-chan time.Time

	clearTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	schedule := func(d time.Duration) {
		clearTimer()
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	defer clearTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-w.commands:
			switch cmd.Kind {
			case CommandStart:
				if state.Running {
					continue
				}
				state.Running = true
				state.ConsecutiveErrors = 0
				w.logger.Debug("motor worker started", "interval", state.Interval.String())
				w.fetchCycle(ctx, &state)
				schedule(nextDelay(state))

			case CommandStop:
				if !state.Running {
					continue
				}
				state.Running = false
				clearTimer()
				w.logger.Debug("motor worker stopped")

			case CommandPoll:
				if !state.Running {
					continue
				}
				w.fetchCycle(ctx, &state)
				schedule(nextDelay(state))

			case CommandSetInterval:
				if !state.Running {
					continue
				}
				if cmd.Interval <= 0 {
					w.logger.Warn("ignoring invalid poll interval", "interval", cmd.Interval)
					continue
				}
				state.Interval = cmd.Interval
			}

		case <-timerC:
			timer, timerC = nil, nil
			if !state.Running {
				continue
			}
			w.fetchCycle(ctx, &state)
			schedule(nextDelay(state))
		}
	}
}

// fetchCycle performs one fetch and emits the corresponding result.
// Fetch failures are expected and frequent on the motor path; they are
// logged at debug level and reported as result messages, never surfaced
// as a visible error.
func (w *Worker) fetchCycle(ctx context.Context, state *PollerState) {
	upd, err := w.client.FetchMotor(ctx)
	if err != nil {
		state.ConsecutiveErrors++
		w.logger.Debug("motor fetch failed",
			"error", err.Error(),
			"consecutive_errors", state.ConsecutiveErrors,
		)
		w.emit(ctx, Result{Kind: ResultError, Err: err.Error()})
		return
	}

	state.ConsecutiveErrors = 0
	w.emit(ctx, Result{
		Kind:         ResultMotorData,
		Motors:       upd.Motors,
		Connectivity: upd.Connectivity,
		Timestamp:    upd.FetchedAt,
	})
}

// emit sends a result unless the worker is shutting down.
func (w *Worker) emit(ctx context.Context, r Result) {
	select {
	case w.results <- r:
	case <-ctx.Done():
	}
}
