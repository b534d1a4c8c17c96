package stt

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/logx"
	"github.com/christian-lee/callpilot/internal/service"
)

// StreamInput is what computeAsync is given to start one recognition
// session: an audio source plus the languages to recognize.
type StreamInput struct {
	Audio        io.ReadCloser
	Language     string
	AltLanguages []string
	ChunkBytes   int
}

// Service is the Speech-to-Text Adapter: it bridges a pull-based
// AudioPublisher/Subscription pair, a provider streaming session, and a
// TranscriptionMerger, under a service.Service lifecycle.
type Service struct {
	log      *logx.Logger
	provider Provider
	registry *SubscriptionRegistry
	name     string

	core   *service.Service
	merger *TranscriptionMerger

	session atomic.Pointer[sessionState]
}

type sessionState struct {
	publisher *AudioPublisher
	sub       *Subscription
	provider  StreamSession
}

// NewService builds the adapter. scope is shared with every other service
// family in the process, per the single-task-group design.
func NewService(name string, provider Provider, scope *service.Scope) *Service {
	s := &Service{
		log:      logx.Named("stt." + name),
		provider: provider,
		registry: NewSubscriptionRegistry(),
		name:     name,
	}
	s.merger = NewTranscriptionMerger(scope, s.resetTimeoutNoop)
	s.core = service.New(name, s, scope)
	return s
}

// Core exposes the underlying lifecycle service for Activate/Stop/etc.
func (s *Service) Core() *service.Service { return s.core }

// Transcriptions is the registry merged Transcription values are delivered
// through.
func (s *Service) Transcriptions() *callback.Registry { return s.merger.Transcriptions() }

// StartSpeaking is the registry the "user started speaking" edge fires on.
func (s *Service) StartSpeaking() *callback.Registry { return s.merger.StartSpeaking() }

func (s *Service) resetTimeoutNoop() {}

// OnActivate is a no-op: the provider client is already constructed, and
// per-stream resources are acquired in OnCompute instead.
func (s *Service) OnActivate(ctx context.Context, tag string) error { return nil }

// OnDeactivate is a no-op for the same reason.
func (s *Service) OnDeactivate(ctx context.Context, tag string) error { return nil }

// OnCompute opens one provider stream, wires the publisher/subscription
// pump to feed it, and blocks until the context is cancelled or the stream
// completes/errors.
func (s *Service) OnCompute(ctx context.Context, input any, resetTimeout func(), tag string) error {
	in, ok := input.(StreamInput)
	if !ok {
		return fmt.Errorf("stt: unexpected input type %T", input)
	}

	s.merger.resetTimeout = resetTimeout
	s.merger.ArmStream(time.Now().UnixMilli())
	defer s.merger.ClearStream()

	done := make(chan error, 1)
	handler := &resultBridge{merger: s.merger, tag: tag, done: done}

	providerStream, err := s.provider.StartStream(in.Language, in.AltLanguages, handler)
	if err != nil {
		return fmt.Errorf("start provider stream: %w", err)
	}

	publisher := NewAudioPublisher(in.Audio, in.ChunkBytes)
	s.registry.Put(tag, publisher)
	defer s.registry.Remove(tag)

	feeder := &feederSubscriber{providerStream: providerStream, done: done}
	sub := publisher.Subscribe(feeder)
	feeder.sub = sub

	st := &sessionState{publisher: publisher, sub: sub, provider: providerStream}
	s.session.Store(st)
	defer s.session.CompareAndSwap(st, nil)

	sub.Request(1 << 30) // continuous demand; the pump is still pull-rate-limited by the reader

	select {
	case <-ctx.Done():
		s.doStop()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// OnStop implements service.Stopper: it tears down the publisher, the
// provider session, and any pending debounce job.
func (s *Service) OnStop(ctx context.Context, tag string) error {
	s.doStop()
	return nil
}

func (s *Service) doStop() {
	if st := s.session.Load(); st != nil {
		st.publisher.Stop()
		st.provider.Cancel()
	}
	s.merger.CancelPending()
	s.merger.ClearStream()
}

var _ service.Implementer = (*Service)(nil)
var _ service.Stopper = (*Service)(nil)

// feederSubscriber bridges AudioPublisher demand to the provider stream:
// every chunk pulled off the publisher is forwarded to the provider's send
// side, and the subscriber keeps asking for more.
type feederSubscriber struct {
	providerStream StreamSession
	sub            *Subscription
	done           chan error
}

func (f *feederSubscriber) OnNext(chunk AudioChunk) {
	if err := f.providerStream.Send(chunk); err != nil {
		f.trySend(err)
		return
	}
	f.sub.Request(1)
}

func (f *feederSubscriber) OnComplete() {
	_ = f.providerStream.CloseSend()
}

func (f *feederSubscriber) OnError(err error) {
	f.trySend(err)
}

func (f *feederSubscriber) trySend(err error) {
	select {
	case f.done <- err:
	default:
	}
}

// resultBridge adapts ResultHandler to the merger.
type resultBridge struct {
	merger *TranscriptionMerger
	tag    string
	done   chan error
}

func (r *resultBridge) OnResults(batch []Result) {
	r.merger.Feed(batch, r.tag)
}

func (r *resultBridge) OnComplete() {
	select {
	case r.done <- nil:
	default:
	}
}

func (r *resultBridge) OnError(err error) {
	select {
	case r.done <- err:
	default:
	}
}
