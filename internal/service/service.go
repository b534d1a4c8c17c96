// Package service implements the reusable asynchronous service lifecycle:
// activate/computeAsync/wait/stop/deactivate/cancelScope, a refreshable
// watchdog, and the single-point error classifier every adapter routes
// through. One concrete Service type carries the state machine; adapters
// plug behavior in through the small Implementer hook interface.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/logx"
)

// Implementer supplies the concrete behavior a Service wraps with
// lifecycle, watchdog, and error-classification plumbing.
type Implementer interface {
	// OnActivate acquires whatever shared resource the service needs
	// (a provider client, for instance). Called with active=false.
	OnActivate(ctx context.Context, tag string) error

	// OnCompute runs one computation. input is whatever computeAsync was
	// given. reset must be called at every quiescence point to refresh a
	// Refreshable watchdog; it is a no-op under a Fixed or nil timeout.
	OnCompute(ctx context.Context, input any, reset func(), tag string) error

	// OnDeactivate releases the resource acquired by OnActivate. Called
	// with computing=false.
	OnDeactivate(ctx context.Context, tag string) error
}

// Waiter is an optional extra hook run synchronously (on the caller's
// goroutine) before Wait returns.
type Waiter interface {
	OnWait(ctx context.Context, tag string) error
}

// Stopper is an optional extra hook run synchronously before Stop returns,
// for implementers that need more than "cancel the computation context"
// (e.g. completing a provider response handler to free SDK resources).
type Stopper interface {
	OnStop(ctx context.Context, tag string) error
}

// Service is the generic lifecycle state machine. The legal states are the
// Cartesian product of (active, computing) minus (false, true), which is
// unreachable by construction: computing only ever flips true from within
// ComputeAsync, which first requires active.
type Service struct {
	name  string
	log   *logx.Logger
	impl  Implementer
	scope *Scope

	active         atomic.Bool
	computing      atomic.Bool
	scopeCancelled atomic.Bool

	errorCallbacks *callback.Registry

	mu              sync.Mutex
	computeCancel   context.CancelFunc
	computeDone     chan struct{}
	lastResetMillis atomic.Int64
}

// New creates a Service bound to scope (a task group shared across the
// service family) and backed by impl.
func New(name string, impl Implementer, scope *Scope) *Service {
	return &Service{
		name:           name,
		log:            logx.Named("service." + name),
		impl:           impl,
		scope:          scope,
		errorCallbacks: callback.New(name + ".errors"),
	}
}

// Errors returns the registry error records are fanned out through.
func (s *Service) Errors() *callback.Registry { return s.errorCallbacks }

// Active reports the active flag. Safe to poll from any goroutine.
func (s *Service) Active() bool { return s.active.Load() }

// Computing reports the computing flag. A caller polling immediately
// after Stop returns may still briefly observe true: computing is only
// cleared at the end of the computation task, not synchronously by Stop.
// This is deliberate eventual consistency, not a bug.
func (s *Service) Computing() bool { return s.computing.Load() }

// ScopeCancelled reports whether CancelScope has run. Monotonic: once true,
// it never reverts, and no further Activate will succeed.
func (s *Service) ScopeCancelled() bool { return s.scopeCancelled.Load() }

func nowMillis() int64 { return time.Now().UnixMilli() }

// Activate runs the implementer's init. Returns false (and logs) on a
// precondition violation or an OnActivate failure; it never panics or
// returns an error to the caller — failures surface only via the error
// registry.
func (s *Service) Activate(ctx context.Context, tag string) bool {
	if s.scopeCancelled.Load() {
		s.log.Warn("activate: scope already cancelled", "tag", tag)
		return false
	}
	if s.active.Load() {
		s.log.Warn("activate: already active", "tag", tag)
		return false
	}

	if err := s.guard(func() error { return s.impl.OnActivate(ctx, tag) }); err != nil {
		s.classify(err, SourceActivating, tag)
		return false
	}
	s.active.Store(true)
	s.log.Info("activated", "tag", tag)
	return true
}

// ComputeAsync starts one computation. It returns true/false on *starting*
// only — the result or failure always arrives via a callback registry the
// implementer owns, never via this return value.
func (s *Service) ComputeAsync(input any, timeout Timeout, tag string) bool {
	if !s.active.Load() || s.computing.Load() {
		s.log.Warn("computeAsync: wrong state", "tag", tag, "active", s.active.Load(), "computing", s.computing.Load())
		return false
	}

	computeCtx, cancel := context.WithCancel(s.scope.Context())
	done := make(chan struct{})

	s.mu.Lock()
	s.computeCancel = cancel
	s.computeDone = done
	s.mu.Unlock()

	s.computing.Store(true)
	s.lastResetMillis.Store(nowMillis())

	reset := func() { s.lastResetMillis.Store(nowMillis()) }

	s.scope.Go(func(context.Context) {
		s.runComputation(computeCtx, done, input, reset, tag)
	})

	if rt, ok := timeout.(Refreshable); ok {
		s.scope.Go(func(context.Context) {
			s.watchdog(computeCtx, done, rt, tag)
		})
	}

	return true
}

func (s *Service) runComputation(ctx context.Context, done chan struct{}, input any, reset func(), tag string) {
	defer close(done)
	start := time.Now()

	err := s.guard(func() error { return s.impl.OnCompute(ctx, input, reset, tag) })

	s.computing.Store(false)
	s.log.Info("compute finished", "tag", tag, "elapsed", time.Since(start))

	if err != nil {
		s.classify(err, SourceComputing, tag)
	}
}

// watchdog ticks every CheckPeriod; on breach it stops the computation and
// fires the timeout's own callback. It exits as soon as the computation
// task completes, whichever happens first.
func (s *Service) watchdog(ctx context.Context, done chan struct{}, spec Refreshable, tag string) {
	if spec.CheckPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(spec.CheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := s.lastResetMillis.Load()
			if nowMillis()-last >= spec.Deadline.Milliseconds() {
				s.log.Warn("watchdog deadline exceeded", "tag", tag, "deadline", spec.Deadline)
				s.Stop(tag)
				if spec.Callback != nil {
					spec.Callback()
				}
				return
			}
		}
	}
}

// Wait suspends the caller until the current computation finishes, or
// until timeout fires (Fixed only — a refreshable spec is meaningless here
// since there is no implementer to call resetTimeout on the caller's
// behalf). A wait timeout does not raise: it requests Stop and invokes the
// timeout's own callback instead.
func (s *Service) Wait(ctx context.Context, timeout *Fixed, tag string) bool {
	if !s.computing.Load() {
		s.log.Warn("wait: not computing", "tag", tag)
		return false
	}

	s.mu.Lock()
	done := s.computeDone
	s.mu.Unlock()
	if done == nil {
		return false
	}

	if timeout == nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.classify(ctx.Err(), SourceWaiting, tag)
		}
		if w, ok := s.impl.(Waiter); ok {
			if err := w.OnWait(ctx, tag); err != nil {
				s.classify(err, SourceWaiting, tag)
			}
		}
		return true
	}

	select {
	case <-done:
	case <-time.After(timeout.Deadline):
		s.log.Warn("wait: timeout, stopping", "tag", tag)
		s.Stop(tag)
		if timeout.Callback != nil {
			timeout.Callback()
		}
	case <-ctx.Done():
		s.classify(ctx.Err(), SourceWaiting, tag)
	}

	if w, ok := s.impl.(Waiter); ok {
		if err := w.OnWait(ctx, tag); err != nil {
			s.classify(err, SourceWaiting, tag)
		}
	}
	return true
}

// Stop requests cancellation of the computation and any watchdog. It does
// not wait for quiescence — follow with Wait for that. Side-effect only:
// teardown failures route through the error taxonomy, never returned.
func (s *Service) Stop(tag string) bool {
	if !s.computing.Load() {
		s.log.Warn("stop: not computing", "tag", tag)
		return false
	}

	s.mu.Lock()
	cancel := s.computeCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if st, ok := s.impl.(Stopper); ok {
		if err := st.OnStop(context.Background(), tag); err != nil {
			s.classify(err, SourceStopping, tag)
		}
	}
	return true
}

// Deactivate runs the implementer's teardown. Requires active and
// !computing.
func (s *Service) Deactivate(ctx context.Context, tag string) bool {
	if !s.active.Load() || s.computing.Load() {
		s.log.Warn("deactivate: wrong state", "tag", tag)
		return false
	}

	if err := s.guard(func() error { return s.impl.OnDeactivate(ctx, tag) }); err != nil {
		s.classify(err, SourceDeactivating, tag)
		return false
	}
	s.active.Store(false)
	s.log.Info("deactivated", "tag", tag)
	return true
}

// CancelScope terminates the task group permanently. No further Activate
// will succeed on this instance afterward. A still-active service is
// deactivated first so scopeCancelled implies neither active nor
// computing once this returns.
func (s *Service) CancelScope() bool {
	if s.computing.Load() {
		s.log.Warn("cancelScope: computing in progress")
		return false
	}
	if s.active.Load() {
		s.Deactivate(context.Background(), "cancelScope")
	}
	s.scope.Cancel()
	s.scope.Wait()
	s.scopeCancelled.Store(true)
	return true
}

// guard recovers a panic from an implementer hook and turns it into an
// error so it flows through the same classification path as a returned
// error.
func (s *Service) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// classify is the single point every abstract operation's failure funnels
// through. Cooperative cancellation is logged at trace and swallowed;
// everything else is logged at error and fanned out as an ErrorRecord. A
// third "fatal, re-raise" outcome is a named extension point the current
// classifier never produces.
func (s *Service) classify(cause error, source ErrorSource, tag string) {
	if cause == nil {
		return
	}
	if isCancellation(cause) {
		s.log.Trace("swallowed cancellation", "source", source, "tag", tag)
		return
	}
	s.log.Error("operation failed", "source", source, "tag", tag, "err", cause)
	s.errorCallbacks.Invoke(ErrorRecord{Cause: cause, Source: source, Tag: tag}, s.scope.CallbackScope())
}
