package stt

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/christian-lee/callpilot/internal/logx"
)

// DefaultChunkBytes is 100ms of 16kHz 16-bit mono PCM.
const DefaultChunkBytes = 3200

// AudioChunk is one fixed-size block of raw PCM s16le audio pulled from the
// publisher.
type AudioChunk struct {
	Data []byte
}

// Subscriber receives the pull-based demand protocol a Subscription drives.
type Subscriber interface {
	OnNext(chunk AudioChunk)
	OnComplete()
	OnError(err error)
}

// AudioPublisher is a single-subscriber reactive publisher over an
// io.ReadCloser of raw PCM audio. A new Subscribe cancels and replaces any
// existing subscription.
type AudioPublisher struct {
	mu          sync.Mutex
	reader      io.ReadCloser
	chunkBytes  int
	current     *Subscription
}

// NewAudioPublisher wraps reader. chunkBytes defaults to DefaultChunkBytes
// when <= 0.
func NewAudioPublisher(reader io.ReadCloser, chunkBytes int) *AudioPublisher {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	return &AudioPublisher{reader: reader, chunkBytes: chunkBytes}
}

// Subscribe starts a new Subscription, cancelling any previous one under the
// publisher's lock.
func (p *AudioPublisher) Subscribe(sub Subscriber) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.current.Cancel()
	}
	s := newSubscription(p.reader, p.chunkBytes, sub)
	p.current = s
	return s
}

// Stop cancels whatever subscription is currently active, reaching into it
// under the publisher's process-wide lock so an external caller can always
// tear down the stream regardless of which Subscription object it holds.
func (p *AudioPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Cancel()
		p.current = nil
	}
}

// Subscription pumps audio chunks to a Subscriber on a single dedicated OS
// thread, since the underlying reader (an ffmpeg/pw-record pipe, or the
// provider SDK's own transport) is not safe to multiplex onto the
// cooperative scheduler.
type Subscription struct {
	log        *logx.Logger
	reader     io.ReadCloser
	chunkBytes int
	subscriber Subscriber

	demand  atomic.Int64
	pumping atomic.Bool
	open    atomic.Bool
}

func newSubscription(reader io.ReadCloser, chunkBytes int, sub Subscriber) *Subscription {
	s := &Subscription{
		log:        logx.Named("stt.subscription"),
		reader:     reader,
		chunkBytes: chunkBytes,
		subscriber: sub,
	}
	s.open.Store(true)
	return s
}

// Request adds n to the outstanding demand and, if no pump goroutine is
// currently running, starts one on a dedicated locked OS thread.
func (s *Subscription) Request(n int64) {
	if n <= 0 || !s.open.Load() {
		return
	}
	s.demand.Add(n)
	if s.pumping.CompareAndSwap(false, true) {
		go s.pump()
	}
}

func (s *Subscription) pump() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer s.pumping.Store(false)

	buf := make([]byte, s.chunkBytes)
	for s.open.Load() && s.demand.Load() > 0 {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.demand.Add(-1)
			s.subscriber.OnNext(AudioChunk{Data: chunk})
		}
		if err != nil {
			if err == io.EOF {
				s.stopOnComplete()
				return
			}
			s.open.Store(false)
			s.subscriber.OnError(err)
			return
		}
		if n == 0 {
			s.stopOnComplete()
			return
		}
	}
}

func (s *Subscription) stopOnComplete() {
	if s.open.CompareAndSwap(true, false) {
		s.subscriber.OnComplete()
	}
}

// Cancel shuts the pump thread down and closes the underlying stream. Safe
// to call more than once.
func (s *Subscription) Cancel() {
	if s.open.CompareAndSwap(true, false) {
		if err := s.reader.Close(); err != nil {
			s.log.Debug("close reader on cancel", "err", err)
		}
	}
}

// SubscriptionRegistry is the explicit, injectable replacement for a
// module-level mutable slot: it tracks the one live AudioPublisher per
// named stream, and StopAll cancels every registered publisher's
// subscription. Service.OnCompute registers its publisher here under the
// call's tag; Service.doStop reaches the publisher through the service's
// own session state, not through this registry.
type SubscriptionRegistry struct {
	mu         sync.Mutex
	publishers map[string]*AudioPublisher
}

// NewSubscriptionRegistry returns an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{publishers: make(map[string]*AudioPublisher)}
}

func (r *SubscriptionRegistry) Put(name string, p *AudioPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[name] = p
}

func (r *SubscriptionRegistry) Get(name string) *AudioPublisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishers[name]
}

func (r *SubscriptionRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.publishers, name)
}

// StopAll cancels every registered publisher's active subscription.
func (r *SubscriptionRegistry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.publishers {
		p.Stop()
	}
}
