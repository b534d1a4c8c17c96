// Package callback implements the keyed, thread-safe callback registry
// every reusable service fans results and errors out through. Handler
// identity is a caller-supplied opaque Handle returned by Add, so two
// separately-declared handlers with identical bodies never collide.
package callback

import (
	"sync"
	"time"

	"github.com/christian-lee/callpilot/internal/logx"
)

// Input is any value a registry can fan out: it carries the operation's
// source tag and knows how to defensively copy itself before dispatch.
type Input interface {
	SourceTag() string
	Copy() Input
}

// Handler receives a single fanned-out Input.
type Handler func(Input)

// Handle is the opaque token returned by Add and required by Remove.
type Handle uint64

// Scope schedules a callback invocation as a child task. A nil Scope means
// "run inline on the caller's goroutine" (used by activate/deactivate/stop,
// where the caller has chosen to bear the synchronous cost).
type Scope interface {
	Go(func())
}

// Registry is a named, mutex-guarded set of handlers for one callback
// category (e.g. a service's error callbacks, or a merger's result
// callbacks).
type Registry struct {
	name string
	log  *logx.Logger

	mu       sync.Mutex
	handlers map[Handle]Handler
	next     Handle
}

// New creates an empty registry. name is used only for logging.
func New(name string) *Registry {
	return &Registry{
		name:     name,
		log:      logx.Named("callback." + name),
		handlers: make(map[Handle]Handler),
	}
}

// Add registers a handler under a fresh handle and returns the handle
// future calls must use to remove it. Adding the same function twice
// registers it twice.
func (r *Registry) Add(h Handler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	handle := r.next
	r.handlers[handle] = h
	return handle
}

// Remove drops a handler. Logs at warn if the handle is unknown.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[h]; !ok {
		r.log.Warn("remove: unknown handle", "handle", h)
		return
	}
	delete(r.handlers, h)
}

// Clear drops every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[Handle]Handler)
}

// Len reports the current handler count (used by tests and diagnostics).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Invoke deep-copies input once, then fans the copy out to every handler:
// scheduled on scope when non-nil (unordered across handlers, no waiting
// for completion), or run inline when scope is nil. A handler panic is
// isolated to that handler.
func (r *Registry) Invoke(input Input, scope Scope) {
	r.mu.Lock()
	handlers := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	cp := input.Copy()
	start := time.Now()
	for _, h := range handlers {
		run := r.wrap(h, cp)
		if scope != nil {
			scope.Go(run)
		} else {
			run()
		}
	}
	r.log.Info("fanned out", "handlers", len(handlers), "tag", cp.SourceTag(), "elapsed", time.Since(start))
}

func (r *Registry) wrap(h Handler, input Input) func() {
	return func() {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("handler panicked", "recover", rec, "tag", input.SourceTag())
			}
		}()
		h(input)
		r.log.Debug("handler completed", "tag", input.SourceTag(), "elapsed", time.Since(start))
	}
}
