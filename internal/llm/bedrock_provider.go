package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/christian-lee/callpilot/internal/logx"
)

// BedrockProvider adapts Amazon Bedrock's Converse streaming API to
// Provider: a client built once, then one call per completion.
type BedrockProvider struct {
	client *bedrockruntime.Client
}

func NewBedrockProvider(cfg aws.Config) *BedrockProvider {
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg)}
}

func (p *BedrockProvider) StartCompletion(req Request, visitor EventVisitor) (Stream, error) {
	ctx, cancel := context.WithCancel(context.Background())

	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]types.ContentBlock, 0, len(m.Contents))
		for _, c := range m.Contents {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: c})
		}
		messages = append(messages, types.Message{Role: bedrockRole(m.Role), Content: blocks})
	}

	var systemBlocks []types.SystemContentBlock
	for _, p := range req.Prompts {
		systemBlocks = append(systemBlocks, &types.SystemContentBlockMemberText{Value: p})
	}

	out, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.ModelName),
		Messages: messages,
		System:   systemBlocks,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
			TopP:        aws.Float32(float32(req.TopP)),
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("converse stream: %w", err)
	}

	s := &bedrockStream{ctx: ctx, cancel: cancel, stream: out.GetStream(), visitor: visitor, log: logx.Named("llm.bedrock")}
	go s.receiveLoop()
	return s, nil
}

func bedrockRole(r Role) types.ConversationRole {
	if r == RoleAssistant {
		return types.ConversationRoleAssistant
	}
	return types.ConversationRoleUser
}

type bedrockStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  *bedrockruntime.ConverseStreamEventStream
	visitor EventVisitor
	log     *logx.Logger
}

func (s *bedrockStream) Cancel() {
	s.cancel()
	_ = s.stream.Close()
}

// receiveLoop decodes ConverseStream's six-edge event union into
// EventVisitor calls.
func (s *bedrockStream) receiveLoop() {
	for event := range s.stream.Events() {
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberMessageStart:
			s.visitor.OnMessageStart()
		case *types.ConverseStreamOutputMemberContentBlockStart:
			s.visitor.OnContentBlockStart()
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if d, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
				s.visitor.OnContentBlockDelta(d.Value)
			}
		case *types.ConverseStreamOutputMemberContentBlockStop:
			s.visitor.OnContentBlockStop()
		case *types.ConverseStreamOutputMemberMessageStop:
			s.visitor.OnMessageStop(StopReason(e.Value.StopReason))
		case *types.ConverseStreamOutputMemberMetadata:
			var latency int64
			var inTok, outTok int
			if u := e.Value.Usage; u != nil {
				inTok = int(aws.ToInt32(u.InputTokens))
				outTok = int(aws.ToInt32(u.OutputTokens))
			}
			if m := e.Value.Metrics; m != nil {
				latency = aws.ToInt64(m.LatencyMs)
			}
			s.visitor.OnMetadata(latency, inTok, outTok)
		default:
			s.log.Debug("unhandled converse stream event", "type", fmt.Sprintf("%T", e))
		}
	}
	if err := s.stream.Err(); err != nil {
		if s.ctx.Err() != nil {
			s.visitor.OnComplete()
			return
		}
		s.visitor.OnError(err)
		return
	}
	s.visitor.OnComplete()
}
