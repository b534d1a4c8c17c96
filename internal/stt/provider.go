package stt

// Alternative is one recognition alternative within a Result: the
// concatenated transcript plus token-level confidences, grounded on the
// provider shape transcribestreaming/types.Alternative exposes (Items with
// per-token Confidence).
type Alternative struct {
	Text              string
	TokenConfidences  []float64 // empty when the provider reports no confidences
	RelativeStartSecs float64
	RelativeEndSecs   float64
}

// Result is one batch the provider's event stream yields: either a partial
// (still-speaking) hypothesis or a final one, each carrying one or more
// Alternatives ordered best-first is not guaranteed — callers must scan for
// the highest-confidence alternative themselves.
type Result struct {
	Partial      bool
	Alternatives []Alternative
}

// MeanConfidence averages the token confidences of this alternative, or
// reports UnknownConfidence if none were provided.
func (a Alternative) MeanConfidence() float64 {
	if len(a.TokenConfidences) == 0 {
		return UnknownConfidence
	}
	var sum float64
	for _, c := range a.TokenConfidences {
		sum += c
	}
	return sum / float64(len(a.TokenConfidences))
}

// ResultHandler receives decoded batches from a streaming session, plus
// completion/error edges, mirroring the provider SDK's event reader.
type ResultHandler interface {
	OnResults(batch []Result)
	OnComplete()
	OnError(err error)
}

// StreamSession is the provider-facing handle for one in-flight streaming
// recognition request.
type StreamSession interface {
	// Send submits one audio chunk to the provider.
	Send(chunk AudioChunk) error
	// CloseSend signals end-of-audio without tearing down the receive side.
	CloseSend() error
	// Cancel aborts the session immediately.
	Cancel()
}

// Provider starts a streaming recognition session and feeds decoded batches
// to handler until the session ends.
type Provider interface {
	StartStream(language string, altLanguages []string, handler ResultHandler) (StreamSession, error)
}
