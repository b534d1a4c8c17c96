package callback

import (
	"sync"
	"sync/atomic"
	"testing"
)

type testInput struct {
	tag     string
	copied  *int32
	mutated bool
}

func (t testInput) SourceTag() string { return t.tag }

func (t testInput) Copy() Input {
	atomic.AddInt32(t.copied, 1)
	return testInput{tag: t.tag, copied: t.copied, mutated: t.mutated}
}

func TestRegistryAddInvokeRemove(t *testing.T) {
	r := New("test")
	var calls int32
	h := r.Add(func(in Input) { atomic.AddInt32(&calls, 1) })

	var copies int32
	r.Invoke(testInput{tag: "t1", copied: &copies}, nil)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if atomic.LoadInt32(&copies) != 1 {
		t.Fatalf("expected exactly one defensive copy, got %d", copies)
	}

	r.Remove(h)
	r.Invoke(testInput{tag: "t2", copied: &copies}, nil)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("handler still firing after remove")
	}
}

func TestRegistryHandlerPanicIsolated(t *testing.T) {
	r := New("test")
	var secondRan bool
	r.Add(func(in Input) { panic("boom") })
	r.Add(func(in Input) { secondRan = true })

	var copies int32
	r.Invoke(testInput{tag: "t", copied: &copies}, nil)
	if !secondRan {
		t.Fatalf("second handler should run despite first panicking")
	}
}

type waitScope struct{ wg sync.WaitGroup }

func (s *waitScope) Go(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func TestRegistryScopedInvokeRunsAllHandlers(t *testing.T) {
	r := New("test")
	var n int32
	for i := 0; i < 5; i++ {
		r.Add(func(in Input) { atomic.AddInt32(&n, 1) })
	}

	scope := &waitScope{}
	var copies int32
	r.Invoke(testInput{tag: "t", copied: &copies}, scope)
	scope.wg.Wait()

	if atomic.LoadInt32(&n) != 5 {
		t.Fatalf("expected 5 handler invocations, got %d", n)
	}
}

func TestClearDropsAllHandlers(t *testing.T) {
	r := New("test")
	var n int32
	r.Add(func(in Input) { atomic.AddInt32(&n, 1) })
	r.Add(func(in Input) { atomic.AddInt32(&n, 1) })
	r.Clear()

	var copies int32
	r.Invoke(testInput{tag: "t", copied: &copies}, nil)
	if n != 0 {
		t.Fatalf("expected no invocations after Clear, got %d", n)
	}
}
