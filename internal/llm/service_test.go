package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/service"
)

type mockStream struct{ cancelled atomic.Bool }

func (m *mockStream) Cancel() { m.cancelled.Store(true) }

// mockProvider hands the test the visitor the service wired up, so the
// test can play the provider's receive loop by hand.
type mockProvider struct {
	mu      sync.Mutex
	visitor EventVisitor
	stream  *mockStream
	started chan struct{}
}

func newMockProvider() *mockProvider {
	return &mockProvider{stream: &mockStream{}, started: make(chan struct{})}
}

func (p *mockProvider) StartCompletion(req Request, v EventVisitor) (Stream, error) {
	p.mu.Lock()
	p.visitor = v
	p.mu.Unlock()
	close(p.started)
	return p.stream, nil
}

func (p *mockProvider) wiredVisitor() EventVisitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visitor
}

func waitNotComputing(t *testing.T, svc *Service) {
	t.Helper()
	deadline := time.After(time.Second)
	for svc.Core().Computing() {
		select {
		case <-deadline:
			t.Fatal("computation did not wind down")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// The provider streams deltas, Stop lands, and only then does the
// provider's receive loop — torn down by the stream cancel — report
// completion. The response must be discarded, and the computation's
// cancellation must not surface as an error record.
func TestServiceStopBeforeProviderCompletionDiscardsResponse(t *testing.T) {
	scope := service.NewScope(context.Background(), "llm-test")
	provider := newMockProvider()
	svc := NewService("test", provider, scope)

	var responded atomic.Bool
	svc.Responses().Add(func(callback.Input) { responded.Store(true) })
	var errored atomic.Bool
	svc.Core().Errors().Add(func(callback.Input) { errored.Store(true) })

	if !svc.Core().Activate(context.Background(), "t") {
		t.Fatal("activate should succeed")
	}
	if !svc.Core().ComputeAsync(NewRequest(nil, nil, "m"), nil, "t") {
		t.Fatal("computeAsync should start")
	}

	<-provider.started
	v := provider.wiredVisitor()
	v.OnMessageStart()
	v.OnContentBlockStart()
	v.OnContentBlockDelta("foo")
	v.OnContentBlockDelta("bar")

	if !svc.Core().Stop("t") {
		t.Fatal("stop should succeed while computing")
	}
	if !provider.stream.cancelled.Load() {
		t.Fatal("stop did not cancel the provider stream")
	}

	// Completion arrives after Stop has already returned.
	v.OnComplete()

	waitNotComputing(t, svc)
	scope.Wait()

	if responded.Load() {
		t.Fatal("response fanned out after stop")
	}
	if errored.Load() {
		t.Fatal("cancellation surfaced as an error record")
	}
}

func TestServiceDeliversResponseOnNormalCompletion(t *testing.T) {
	scope := service.NewScope(context.Background(), "llm-test")
	provider := newMockProvider()
	svc := NewService("test", provider, scope)

	responses := make(chan Response, 1)
	svc.Responses().Add(func(in callback.Input) { responses <- in.(Response) })

	svc.Core().Activate(context.Background(), "t")
	svc.Core().ComputeAsync(NewRequest(nil, nil, "m"), nil, "tag-7")

	<-provider.started
	v := provider.wiredVisitor()
	v.OnMessageStart()
	v.OnContentBlockDelta("hello")
	v.OnContentBlockStop()
	v.OnMessageStop("end_turn")
	v.OnMetadata(42, 10, 20)
	v.OnComplete()

	select {
	case resp := <-responses:
		if resp.Message != "hello" {
			t.Fatalf("message = %q, want %q", resp.Message, "hello")
		}
		if resp.LatencyMs != 42 || resp.InputTokens != 10 || resp.OutputTokens != 20 {
			t.Fatalf("metadata wrong: %+v", resp)
		}
		if resp.Tag != "tag-7" {
			t.Fatalf("tag = %q, want tag-7", resp.Tag)
		}
	case <-time.After(time.Second):
		t.Fatal("no response fanned out")
	}

	waitNotComputing(t, svc)
}

func TestServiceProviderErrorRoutesThroughErrorRegistry(t *testing.T) {
	scope := service.NewScope(context.Background(), "llm-test")
	provider := newMockProvider()
	svc := NewService("test", provider, scope)

	var responded atomic.Bool
	svc.Responses().Add(func(callback.Input) { responded.Store(true) })
	records := make(chan service.ErrorRecord, 1)
	svc.Core().Errors().Add(func(in callback.Input) { records <- in.(service.ErrorRecord) })

	svc.Core().Activate(context.Background(), "t")
	svc.Core().ComputeAsync(NewRequest(nil, nil, "m"), nil, "t")

	<-provider.started
	v := provider.wiredVisitor()
	v.OnContentBlockDelta("partial")
	v.OnError(errors.New("throttled"))

	select {
	case rec := <-records:
		if rec.Source != service.SourceComputing {
			t.Fatalf("source = %v, want COMPUTING", rec.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("no error record fanned out")
	}
	if responded.Load() {
		t.Fatal("response fanned out despite stream error")
	}
}
