package llm

import "testing"

func TestNewRequestReadsInferenceParamsFromEnvironment(t *testing.T) {
	t.Setenv("AWS_BEDROCK_MAX_TOKENS", "2048")
	t.Setenv("AWS_BEDROCK_TEMPERATURE", "0.2")
	t.Setenv("AWS_BEDROCK_TOP_P", "0.5")

	req := NewRequest([]string{"sys"}, nil, "model-x")
	if req.MaxTokens != 2048 {
		t.Fatalf("max tokens = %d, want 2048", req.MaxTokens)
	}
	if req.Temperature != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", req.Temperature)
	}
	if req.TopP != 0.5 {
		t.Fatalf("top_p = %v, want 0.5", req.TopP)
	}
	if req.ModelName != "model-x" || len(req.Prompts) != 1 {
		t.Fatalf("request shape wrong: %+v", req)
	}
}

func TestNewRequestFallsBackOnUnsetOrUnparsableEnv(t *testing.T) {
	t.Setenv("AWS_BEDROCK_MAX_TOKENS", "many")
	t.Setenv("AWS_BEDROCK_TEMPERATURE", "")
	t.Setenv("AWS_BEDROCK_TOP_P", "")

	req := NewRequest(nil, nil, "m")
	if req.MaxTokens != 1024 {
		t.Fatalf("max tokens = %d, want fallback 1024", req.MaxTokens)
	}
	if req.Temperature != 0.7 || req.TopP != 0.9 {
		t.Fatalf("fallbacks wrong: %+v", req)
	}
}
