package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/logger"
)

// Runner processes sync triggers in the background. Triggers are submitted
// fire-and-forget from mutation paths, connectivity transitions, and process
// start; the runner coalesces them into single-flight cycles so callers
// never block on sync latency.
type Runner struct {
	engine   *Engine
	debounce time.Duration

	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu         sync.Mutex
	started    bool
	online     bool
	pending    *time.Timer
	lastResult *Result

	log *zap.SugaredLogger
}

// NewRunner creates a runner around the given engine. debounce is the delay
// applied to connectivity-recovery triggers so flapping connectivity does
// not fire duplicate cycles.
func NewRunner(engine *Engine, debounce time.Duration) *Runner {
	return &Runner{
		engine:   engine,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		online:   true,
		log:      logger.Get(),
	}
}

// Start launches the background loop. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
	r.log.Info("sync runner started")
}

// Stop shuts the runner down and waits for an in-flight cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.log.Info("sync runner stopped")
}

// Trigger requests a sync cycle. Non-blocking: if a trigger is already
// pending the request coalesces with it, and if a cycle is in flight the
// pending trigger runs another cycle afterwards.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// SetOnline reports a connectivity observation. An offline-to-online
// transition schedules a debounced trigger; going offline cancels any
// not-yet-fired one.
func (r *Runner) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasOnline := r.online
	r.online = online

	if online && !wasOnline {
		r.log.Infow("connectivity restored, scheduling sync", "debounce", r.debounce)
		if r.pending != nil {
			r.pending.Stop()
		}
		r.pending = time.AfterFunc(r.debounce, r.Trigger)
	}
	if !online && wasOnline {
		r.log.Info("connectivity lost")
		if r.pending != nil {
			r.pending.Stop()
			r.pending = nil
		}
	}
}

// Status returns the outcome of the most recent cycle, nil if none has run.
// A failed cycle's Error field is the sync-status error string shown to the
// user; it never blocks or fails mutation calls.
func (r *Runner) Status() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-r.trigger:
			if !r.isOnline() {
				r.log.Debug("skipping sync trigger while offline")
				continue
			}
			result := r.engine.Sync(ctx)
			if !result.Skipped {
				r.mu.Lock()
				r.lastResult = result
				r.mu.Unlock()
			}
		}
	}
}

func (r *Runner) isOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}
