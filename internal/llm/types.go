package llm

import (
	"github.com/christian-lee/callpilot/internal/callback"
)

// Role mirrors the conversation store's two LLM-visible roles.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Message is one turn offered to the model.
type Message struct {
	Role     Role
	Contents []string
}

// Request is what computeAsync is given to start one LLM turn.
//
// Numeric defaults (MaxTokens, Temperature, TopP) are drawn from
// environment at construction time (see NewRequest), not hardcoded here.
type Request struct {
	Prompts     []string
	Messages    []Message
	ModelName   string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Response is what fans out on successful completion.
type Response struct {
	Message      string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	Tag          string
}

func (r Response) SourceTag() string    { return r.Tag }
func (r Response) Copy() callback.Input { return r }

var _ callback.Input = Response{}
