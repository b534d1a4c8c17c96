package llm

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/christian-lee/callpilot/internal/logx"
)

// Aggregator accumulates one streaming completion's deltas and metadata,
// then assembles a Response on completion — unless the computing job has
// already been cancelled, in which case it discards silently.
type Aggregator struct {
	log *logx.Logger

	mu      sync.Mutex
	buf     strings.Builder
	latency int64
	inTok   int
	outTok  int

	tag          string
	resetTimeout func()
	cancelled    atomic.Bool

	responses *responsesTarget
}

// responsesTarget is the minimal sink an Aggregator fans a completed
// Response into; the Service supplies the real callback registry.
type responsesTarget struct {
	deliver func(Response)
}

// NewAggregator creates an Aggregator for one completion. deliver is called
// exactly once, on OnComplete, unless MarkCancelled was called first.
func NewAggregator(tag string, resetTimeout func(), deliver func(Response)) *Aggregator {
	return &Aggregator{
		log:          logx.Named("llm.aggregator"),
		tag:          tag,
		resetTimeout: resetTimeout,
		responses:    &responsesTarget{deliver: deliver},
	}
}

// MarkCancelled flips the dead-man's-switch. Called by Stop before the
// provider's completion handler has necessarily observed cancellation.
func (a *Aggregator) MarkCancelled() { a.cancelled.Store(true) }

func (a *Aggregator) OnMessageStart()      {}
func (a *Aggregator) OnContentBlockStart() {}

// OnContentBlockDelta appends text and resets the watchdog — the single
// most important liveness hook, since a provider may stream silently for
// seconds between model "thoughts".
func (a *Aggregator) OnContentBlockDelta(chunkText string) {
	a.mu.Lock()
	a.buf.WriteString(chunkText)
	a.mu.Unlock()
	if a.resetTimeout != nil {
		a.resetTimeout()
	}
}

func (a *Aggregator) OnContentBlockStop() {}

func (a *Aggregator) OnMessageStop(reason StopReason) {
	a.log.Trace("message stop", "tag", a.tag, "reason", reason)
}

func (a *Aggregator) OnMetadata(latencyMs int64, inputTokens, outputTokens int) {
	a.mu.Lock()
	a.latency = latencyMs
	a.inTok = inputTokens
	a.outTok = outputTokens
	a.mu.Unlock()
}

// OnComplete assembles and delivers the Response, unless the job was
// already cancelled.
func (a *Aggregator) OnComplete() {
	if a.cancelled.Load() {
		a.log.Trace("discarding completion for cancelled job", "tag", a.tag)
		return
	}
	a.mu.Lock()
	resp := Response{
		Message:      a.buf.String(),
		LatencyMs:    a.latency,
		InputTokens:  a.inTok,
		OutputTokens: a.outTok,
		Tag:          a.tag,
	}
	a.mu.Unlock()
	a.responses.deliver(resp)
}

func (a *Aggregator) OnError(err error) {
	a.log.Debug("completion stream error", "tag", a.tag, "err", err)
}

var _ EventVisitor = (*Aggregator)(nil)
