package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/logx"
)

// Scope is a single cooperative task group: the supervisor that owns every
// goroutine a service family schedules. A child task's failure (panic or
// returned error) never cancels its siblings — only Cancel tears the whole
// group down. One Scope is shared across every instance of a service
// family.
type Scope struct {
	log *logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	cancelled atomic.Bool
}

// NewScope creates a task group rooted at parent.
func NewScope(parent context.Context, name string) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{
		log:    logx.Named("scope." + name),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the scope's cancellation context. Children observe this
// context's Done() channel to know the group was torn down.
func (s *Scope) Context() context.Context { return s.ctx }

// Go schedules fn as a supervised child task. Panics are recovered and
// logged; they do not propagate to siblings or the caller.
func (s *Scope) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked", "recover", r)
			}
		}()
		fn(s.ctx)
	}()
}

// CallbackScope adapts this Scope to callback.Scope, so registries can
// schedule handler fan-out as children of the same task group (enabling
// cascading cancellation when the scope is cancelled).
func (s *Scope) CallbackScope() callback.Scope {
	return callbackScopeAdapter{s}
}

type callbackScopeAdapter struct{ scope *Scope }

func (a callbackScopeAdapter) Go(fn func()) {
	a.scope.Go(func(ctx context.Context) { fn() })
}

// Cancel terminates the task group. Idempotent.
func (s *Scope) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Scope) Cancelled() bool { return s.cancelled.Load() }

// Wait blocks until every scheduled task has returned.
func (s *Scope) Wait() { s.wg.Wait() }
