package stt

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"github.com/christian-lee/callpilot/internal/logx"
)

// AWSProvider adapts Amazon Transcribe's streaming API to Provider: a
// client built once, then one bidirectional stream per StartStream call.
type AWSProvider struct {
	client     *transcribestreaming.Client
	sampleRate int32
}

// NewAWSProvider builds a provider from an already-loaded AWS config (see
// internal/config for how AWS_REGION is resolved; credentials come from the
// AWS SDK's default chain, loaded in cmd/assistant).
func NewAWSProvider(cfg aws.Config, sampleRateHertz int32) *AWSProvider {
	if sampleRateHertz <= 0 {
		sampleRateHertz = 16000
	}
	return &AWSProvider{client: transcribestreaming.NewFromConfig(cfg), sampleRate: sampleRateHertz}
}

func (p *AWSProvider) StartStream(language string, altLanguages []string, handler ResultHandler) (StreamSession, error) {
	ctx, cancel := context.WithCancel(context.Background())

	out, err := p.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(language),
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(p.sampleRate),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start stream transcription: %w", err)
	}

	s := &awsSession{
		ctx:     ctx,
		cancel:  cancel,
		stream:  out.GetStream(),
		handler: handler,
		log:     logx.Named("stt.aws"),
	}
	go s.receiveLoop()
	return s, nil
}

type awsSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  *transcribestreaming.StartStreamTranscriptionEventStream
	handler ResultHandler
	log     *logx.Logger
}

func (s *awsSession) Send(chunk AudioChunk) error {
	event := &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: chunk.Data}}
	return s.stream.Send(s.ctx, event)
}

func (s *awsSession) CloseSend() error {
	return s.stream.Send(s.ctx, &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: nil}})
}

func (s *awsSession) Cancel() {
	s.cancel()
	_ = s.stream.Close()
}

// receiveLoop decodes transcribestreaming's event-stream union into the
// provider-neutral Result/Alternative shape.
func (s *awsSession) receiveLoop() {
	for event := range s.stream.Events() {
		switch e := event.(type) {
		case *types.TranscriptResultStreamMemberTranscriptEvent:
			batch := decodeTranscriptEvent(e.Value)
			if len(batch) > 0 {
				s.handler.OnResults(batch)
			}
		default:
			s.log.Debug("unhandled transcript stream event", "type", fmt.Sprintf("%T", e))
		}
	}
	if err := s.stream.Err(); err != nil {
		if s.ctx.Err() != nil {
			s.handler.OnComplete()
			return
		}
		s.handler.OnError(err)
		return
	}
	s.handler.OnComplete()
}

func decodeTranscriptEvent(te types.TranscriptEvent) []Result {
	if te.Transcript == nil {
		return nil
	}
	batch := make([]Result, 0, len(te.Transcript.Results))
	for _, r := range te.Transcript.Results {
		batch = append(batch, decodeResult(r))
	}
	return batch
}

func decodeResult(r types.Result) Result {
	alts := make([]Alternative, 0, len(r.Alternatives))
	for _, a := range r.Alternatives {
		alts = append(alts, decodeAlternative(a))
	}
	return Result{Partial: r.IsPartial, Alternatives: alts}
}

func decodeAlternative(a types.Alternative) Alternative {
	var text string
	if a.Transcript != nil {
		text = *a.Transcript
	}
	confidences := make([]float64, 0, len(a.Items))
	var start, end float64
	for i, item := range a.Items {
		if item.Confidence != nil {
			confidences = append(confidences, *item.Confidence)
		}
		if i == 0 {
			start = item.StartTime
		}
		end = item.EndTime
	}
	return Alternative{Text: text, TokenConfidences: confidences, RelativeStartSecs: start, RelativeEndSecs: end}
}
