package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Fallback is the degraded-mode motor poller used when the isolated
// [Worker] cannot be started.
//
// Fallback runs on a plain fixed ticker in the caller's context: no
// command protocol, no backoff. It tracks consecutive errors for
// observability but never stretches its schedule. Teardown is folded
// into the owner's shutdown via [Fallback.Stop].
type Fallback struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger
	results  chan Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewFallback creates a fallback motor poller with a fixed interval.
func NewFallback(client *Client, interval time.Duration, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		client:   client,
		interval: interval,
		logger:   logger,
		results:  make(chan Result, commandBufferSize),
	}
}

// Results returns the receive-only result channel. The channel is closed
// when the poller stops.
func (f *Fallback) Results() <-chan Result {
	return f.results
}

// Start begins the fixed-interval fetch loop in a background goroutine,
// polling once immediately. Start is non-blocking and idempotent.
func (f *Fallback) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	loopCtx := f.ctx
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer f.closeOnce.Do(func() { close(f.results) })

		state := PollerState{Running: true, Interval: f.interval}
		f.fetchCycle(loopCtx, &state)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				f.fetchCycle(loopCtx, &state)
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit. Stop is idempotent and
// safe to call before Start.
func (f *Fallback) Stop() {
	f.mu.Lock()
	if !f.stopped {
		f.stopped = true
		if f.cancel != nil {
			f.cancel()
		}
	}
	f.mu.Unlock()

	f.wg.Wait()
	f.closeOnce.Do(func() { close(f.results) })
}

// fetchCycle performs one fetch and emits the corresponding result.
// Same result semantics as the worker; the error count never alters the
// ticker cadence.
func (f *Fallback) fetchCycle(ctx context.Context, state *PollerState) {
	upd, err := f.client.FetchMotor(ctx)
	if err != nil {
		state.ConsecutiveErrors++
		f.logger.Debug("fallback motor fetch failed",
			"error", err.Error(),
			"consecutive_errors", state.ConsecutiveErrors,
		)
		select {
		case f.results <- Result{Kind: ResultError, Err: err.Error()}:
		case <-ctx.Done():
		}
		return
	}

	state.ConsecutiveErrors = 0
	select {
	case f.results <- Result{
		Kind:         ResultMotorData,
		Motors:       upd.Motors,
		Connectivity: upd.Connectivity,
		Timestamp:    upd.FetchedAt,
	}:
	case <-ctx.Done():
	}
}
