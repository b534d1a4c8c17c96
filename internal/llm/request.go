package llm

import (
	"os"
	"strconv"
)

// NewRequest builds a Request for prompts/messages against modelName,
// filling MaxTokens/Temperature/TopP from environment, falling back to
// sensible defaults when unset or unparsable.
func NewRequest(prompts []string, messages []Message, modelName string) Request {
	return Request{
		Prompts:     prompts,
		Messages:    messages,
		ModelName:   modelName,
		MaxTokens:   envInt("AWS_BEDROCK_MAX_TOKENS", 1024),
		Temperature: envFloat("AWS_BEDROCK_TEMPERATURE", 0.7),
		TopP:        envFloat("AWS_BEDROCK_TOP_P", 0.9),
	}
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
