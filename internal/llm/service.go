package llm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/logx"
	"github.com/christian-lee/callpilot/internal/service"
)

// Service runs one service.Service-managed streaming completion at a
// time, aggregated and fanned out through a callback registry, with a
// dead-man's-switch guard so a completion racing a Stop is discarded.
type Service struct {
	log      *logx.Logger
	provider Provider
	name     string

	core      *service.Service
	scope     *service.Scope
	responses *callback.Registry

	active atomic.Pointer[inflight]
}

type inflight struct {
	stream     Stream
	aggregator *Aggregator
}

// NewService builds the adapter.
func NewService(name string, provider Provider, scope *service.Scope) *Service {
	s := &Service{
		log:       logx.Named("llm." + name),
		provider:  provider,
		name:      name,
		scope:     scope,
		responses: callback.New(name + ".responses"),
	}
	s.core = service.New(name, s, scope)
	return s
}

// Core exposes the underlying lifecycle service.
func (s *Service) Core() *service.Service { return s.core }

// Responses is the registry completed Response values are fanned out
// through.
func (s *Service) Responses() *callback.Registry { return s.responses }

func (s *Service) OnActivate(ctx context.Context, tag string) error   { return nil }
func (s *Service) OnDeactivate(ctx context.Context, tag string) error { return nil }

// OnCompute starts one streaming completion and blocks until it completes,
// errors, or ctx is cancelled.
func (s *Service) OnCompute(ctx context.Context, input any, resetTimeout func(), tag string) error {
	req, ok := input.(Request)
	if !ok {
		return fmt.Errorf("llm: unexpected input type %T", input)
	}

	done := make(chan error, 1)
	agg := NewAggregator(tag, resetTimeout, func(resp Response) {
		s.responses.Invoke(resp, s.scope.CallbackScope())
		select {
		case done <- nil:
		default:
		}
	})
	errorVisitor := &visitorWithErrorChannel{EventVisitor: agg, done: done}

	stream, err := s.provider.StartCompletion(req, errorVisitor)
	if err != nil {
		return fmt.Errorf("start completion: %w", err)
	}

	st := &inflight{stream: stream, aggregator: agg}
	s.active.Store(st)
	defer s.active.CompareAndSwap(st, nil)

	select {
	case <-ctx.Done():
		s.doStop(st)
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// OnStop implements service.Stopper: mark the aggregator cancelled, then
// cancel the in-flight request, so a completion event racing in after Stop
// is silently discarded rather than fanned out.
func (s *Service) OnStop(ctx context.Context, tag string) error {
	if st := s.active.Load(); st != nil {
		s.doStop(st)
	}
	return nil
}

func (s *Service) doStop(st *inflight) {
	// MarkCancelled must precede Cancel: tearing the stream down can let
	// the provider's receive loop report completion immediately, and that
	// completion has to observe the cancelled flag already set.
	st.aggregator.MarkCancelled()
	st.stream.Cancel()
}

var _ service.Implementer = (*Service)(nil)
var _ service.Stopper = (*Service)(nil)

// visitorWithErrorChannel wraps an EventVisitor so OnError also unblocks
// OnCompute's select, without the Aggregator needing to know about the done
// channel itself. OnComplete unblocks it through the Aggregator's deliver
// function, which OnCompute wires to the same channel.
type visitorWithErrorChannel struct {
	EventVisitor
	done chan error
}

func (v *visitorWithErrorChannel) OnError(err error) {
	v.EventVisitor.OnError(err)
	select {
	case v.done <- err:
	default:
	}
}
