package stt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/logx"
	"github.com/christian-lee/callpilot/internal/service"
)

// MinPartialWords is the "user started speaking" edge threshold: the
// longest partial alternative must exceed this many whitespace-separated
// words before the start-speaking callback fires.
const MinPartialWords = 4

// TranscriptionBufferingTime is the merge-debounce window: once a final
// result lands, the merger waits this long for speech to resume before
// flushing the buffered transcription.
const TranscriptionBufferingTime = 1000 * time.Millisecond

// TranscriptionMerger debounces and merges recognition results: partial
// results update a "user is speaking" edge, final results merge into a
// buffer that flushes after a quiet window.
type TranscriptionMerger struct {
	log   *logx.Logger
	scope *service.Scope

	transcriptions *callback.Registry
	startSpeaking  *callback.Registry

	mu                          sync.Mutex
	bufferedTranscription       Transcription
	mergeJobGeneration          uint64
	userIsSpeaking              atomic.Bool
	userStartedSpeakingNotified bool

	audioStreamStartMillis atomic.Int64
	resetTimeout           func()
}

// NewTranscriptionMerger creates a merger scheduling its debounce jobs on
// scope. resetTimeout refreshes the owning service's watchdog.
func NewTranscriptionMerger(scope *service.Scope, resetTimeout func()) *TranscriptionMerger {
	return &TranscriptionMerger{
		log:            logx.Named("stt.merger"),
		scope:          scope,
		transcriptions: callback.New("stt.transcriptions"),
		startSpeaking:  callback.New("stt.startSpeaking"),
		bufferedTranscription: Reset(),
		resetTimeout:   resetTimeout,
	}
}

// Transcriptions is the registry merged Transcription values are fanned out
// through.
func (m *TranscriptionMerger) Transcriptions() *callback.Registry { return m.transcriptions }

// StartSpeaking is the registry the "user started speaking" edge fires on.
// Handlers receive no payload-bearing Input; callers add plain func(Input)
// handlers and ignore the argument.
func (m *TranscriptionMerger) StartSpeaking() *callback.Registry { return m.startSpeaking }

// ArmStream records when the current audio stream began, for converting
// provider-relative timings to absolute ones.
func (m *TranscriptionMerger) ArmStream(startMillis int64) {
	m.audioStreamStartMillis.Store(startMillis)
}

// ClearStream forgets the stream start time; used by doStop.
func (m *TranscriptionMerger) ClearStream() {
	m.audioStreamStartMillis.Store(0)
}

// CancelPending invalidates any outstanding debounce job and drops the
// buffered transcription; a job that later wakes sees a stale generation
// and does nothing.
func (m *TranscriptionMerger) CancelPending() {
	m.mu.Lock()
	m.mergeJobGeneration++
	m.bufferedTranscription = Reset()
	m.mu.Unlock()
}

// Feed processes one batch of provider Results.
func (m *TranscriptionMerger) Feed(batch []Result, tag string) {
	if m.resetTimeout != nil {
		m.resetTimeout()
	}

	allPartial := true
	var finals []Result
	for _, r := range batch {
		if r.Partial {
			continue
		}
		allPartial = false
		finals = append(finals, r)
	}

	if allPartial {
		m.handleAllPartial(batch, tag)
		return
	}

	if len(finals) == 0 {
		return
	}
	m.handleFinal(finals, tag)
}

func (m *TranscriptionMerger) handleAllPartial(batch []Result, tag string) {
	m.userIsSpeaking.Store(true)

	m.mu.Lock()
	notified := m.userStartedSpeakingNotified
	m.mu.Unlock()
	if notified {
		return
	}

	longest := 0
	for _, r := range batch {
		for _, a := range r.Alternatives {
			if n := countWords(a.Text); n > longest {
				longest = n
			}
		}
	}
	if longest <= MinPartialWords {
		return
	}

	m.mu.Lock()
	if m.userStartedSpeakingNotified {
		m.mu.Unlock()
		return
	}
	m.userStartedSpeakingNotified = true
	m.mu.Unlock()

	m.log.Trace("user started speaking", "tag", tag, "words", longest)
	m.startSpeaking.Invoke(speakingEdge{tag: tag}, m.scope.CallbackScope())
}

func (m *TranscriptionMerger) handleFinal(finals []Result, tag string) {
	best := bestAlternative(finals)
	parsed := m.toTranscription(best, tag)

	m.mu.Lock()
	m.bufferedTranscription = m.bufferedTranscription.Merge(parsed)
	m.mergeJobGeneration++
	generation := m.mergeJobGeneration
	m.userStartedSpeakingNotified = false
	m.mu.Unlock()
	m.userIsSpeaking.Store(false)

	// Incrementing mergeJobGeneration under the lock above is what "cancels"
	// any outstanding debounce job: when an earlier job wakes it will see a
	// stale generation and do nothing.
	m.scope.Go(func(ctx context.Context) {
		select {
		case <-time.After(TranscriptionBufferingTime):
		case <-ctx.Done():
			return
		}
		m.flushIfDue(generation)
	})
}

// flushIfDue runs when a debounce job wakes. It only flushes if no newer
// final result superseded it (generation still current) and the user
// hasn't resumed speaking during the sleep.
func (m *TranscriptionMerger) flushIfDue(generation uint64) {
	if m.userIsSpeaking.Load() {
		return
	}

	m.mu.Lock()
	if generation != m.mergeJobGeneration {
		m.mu.Unlock()
		return
	}
	result := m.bufferedTranscription
	m.bufferedTranscription = Reset()
	m.mu.Unlock()

	m.log.Debug("flushing buffered transcription", "text", logx.Lazy(func() string { return result.Text }), "conf", result.Confidence)
	m.transcriptions.Invoke(result, m.scope.CallbackScope())
}

// bestAlternative picks the alternative with highest mean confidence
// across every final result in the batch.
func bestAlternative(finals []Result) Alternative {
	var best Alternative
	bestConf := UnknownConfidence - 1
	for _, r := range finals {
		for _, a := range r.Alternatives {
			c := a.MeanConfidence()
			if c > bestConf {
				bestConf = c
				best = a
			}
		}
	}
	return best
}

func (m *TranscriptionMerger) toTranscription(a Alternative, tag string) Transcription {
	start := m.absoluteMillis(a.RelativeStartSecs)
	end := m.absoluteMillis(a.RelativeEndSecs)
	return Transcription{
		Text:        a.Text,
		Confidence:  a.MeanConfidence(),
		StartMillis: start,
		EndMillis:   end,
		Tag:         tag,
	}
}

func (m *TranscriptionMerger) absoluteMillis(relativeSecs float64) int64 {
	relMillis, ok := checkTime(relativeSecs)
	if !ok || relMillis == UnknownTimeMillis {
		return UnknownTimeMillis
	}
	base := m.audioStreamStartMillis.Load()
	if base == 0 {
		return UnknownTimeMillis
	}
	return base + relMillis
}

// speakingEdge is the Input value fanned out on the start-speaking edge; it
// carries nothing but a source tag.
type speakingEdge struct{ tag string }

func (s speakingEdge) SourceTag() string    { return s.tag }
func (s speakingEdge) Copy() callback.Input { return s }

var _ callback.Input = speakingEdge{}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}
