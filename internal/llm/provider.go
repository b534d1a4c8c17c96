package llm

// StopReason is the model's reported reason for ending generation.
type StopReason string

// EventVisitor receives the six edges a streaming completion can produce,
// mirroring ConverseStream's event union
// (MessageStart/ContentBlockStart/ContentBlockDelta/ContentBlockStop/
// MessageStop/Metadata) plus the two terminal edges every provider call
// needs regardless of transport.
type EventVisitor interface {
	OnMessageStart()
	OnContentBlockStart()
	OnContentBlockDelta(chunkText string)
	OnContentBlockStop()
	OnMessageStop(reason StopReason)
	OnMetadata(latencyMs int64, inputTokens, outputTokens int)
	OnComplete()
	OnError(err error)
}

// Stream is the provider-facing handle for one in-flight completion.
type Stream interface {
	// Cancel aborts the in-flight request.
	Cancel()
}

// Provider starts a streaming completion and feeds decoded events to
// visitor until the stream ends.
type Provider interface {
	StartCompletion(req Request, visitor EventVisitor) (Stream, error)
}
