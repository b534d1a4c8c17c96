package stt

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeReader struct {
	mu     sync.Mutex
	data   *bytes.Reader
	err    error
	closed atomic.Bool
}

func newFakeReader(data []byte) *fakeReader {
	return &fakeReader{data: bytes.NewReader(data)}
}

func (f *fakeReader) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.data.Read(p)
}

func (f *fakeReader) Close() error {
	f.closed.Store(true)
	return nil
}

type recordingSubscriber struct {
	mu        sync.Mutex
	chunks    [][]byte
	completes int
	errs      []error
}

func (r *recordingSubscriber) OnNext(chunk AudioChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk.Data)
}

func (r *recordingSubscriber) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

func (r *recordingSubscriber) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSubscriber) snapshot() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks), r.completes, len(r.errs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached within 2s")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func TestSubscriptionDeliversOnlyDemandedChunks(t *testing.T) {
	reader := newFakeReader(make([]byte, 100))
	p := NewAudioPublisher(reader, 10)
	sub := &recordingSubscriber{}
	s := p.Subscribe(sub)

	s.Request(3)
	waitFor(t, func() (ok bool) { n, _, _ := sub.snapshot(); return n == 3 })

	// No further demand: the pump must stop at exactly three chunks.
	time.Sleep(50 * time.Millisecond)
	if n, _, _ := sub.snapshot(); n != 3 {
		t.Fatalf("delivered %d chunks with demand 3", n)
	}

	s.Request(2)
	waitFor(t, func() bool { n, _, _ := sub.snapshot(); return n == 5 })
}

func TestSubscriptionEndOfStreamCompletesOnce(t *testing.T) {
	reader := newFakeReader(make([]byte, 25))
	p := NewAudioPublisher(reader, 10)
	sub := &recordingSubscriber{}
	s := p.Subscribe(sub)

	s.Request(100)
	waitFor(t, func() bool { _, c, _ := sub.snapshot(); return c > 0 })

	n, completes, errCount := sub.snapshot()
	if n != 3 {
		t.Fatalf("delivered %d chunks, want 3 (10+10+5)", n)
	}
	if completes != 1 {
		t.Fatalf("OnComplete fired %d times, want 1", completes)
	}
	if errCount != 0 {
		t.Fatalf("unexpected errors: %d", errCount)
	}
}

func TestSubscriptionReadErrorRoutesToOnError(t *testing.T) {
	reader := newFakeReader(nil)
	reader.err = errors.New("device gone")
	p := NewAudioPublisher(reader, 10)
	sub := &recordingSubscriber{}
	s := p.Subscribe(sub)

	s.Request(1)
	waitFor(t, func() bool { _, _, e := sub.snapshot(); return e == 1 })

	if _, completes, _ := sub.snapshot(); completes != 0 {
		t.Fatal("OnComplete must not fire after OnError")
	}
}

func TestSubscribeReplacesPreviousSubscription(t *testing.T) {
	reader := newFakeReader(make([]byte, 1000))
	p := NewAudioPublisher(reader, 10)

	first := p.Subscribe(&recordingSubscriber{})
	second := p.Subscribe(&recordingSubscriber{})

	if first.open.Load() {
		t.Fatal("first subscription should be cancelled on replacement")
	}
	if !second.open.Load() {
		t.Fatal("second subscription should be open")
	}
}

func TestPublisherStopCancelsAndClosesReader(t *testing.T) {
	reader := newFakeReader(make([]byte, 1000))
	p := NewAudioPublisher(reader, 10)
	s := p.Subscribe(&recordingSubscriber{})

	p.Stop()
	if s.open.Load() {
		t.Fatal("subscription still open after publisher Stop")
	}
	if !reader.closed.Load() {
		t.Fatal("reader not closed after publisher Stop")
	}

	// Idempotent: a second Stop with no current subscription is a no-op.
	p.Stop()
}

func TestSubscriptionRegistryStopAll(t *testing.T) {
	r := NewSubscriptionRegistry()
	readerA := newFakeReader(make([]byte, 100))
	readerB := newFakeReader(make([]byte, 100))
	pa := NewAudioPublisher(readerA, 10)
	pb := NewAudioPublisher(readerB, 10)
	sa := pa.Subscribe(&recordingSubscriber{})
	sb := pb.Subscribe(&recordingSubscriber{})

	r.Put("a", pa)
	r.Put("b", pb)
	if r.Get("a") != pa {
		t.Fatal("Get returned wrong publisher")
	}

	r.StopAll()
	if sa.open.Load() || sb.open.Load() {
		t.Fatal("StopAll left a subscription open")
	}

	r.Remove("a")
	if r.Get("a") != nil {
		t.Fatal("Remove left publisher in registry")
	}
}
