// Package config loads the assistant's YAML configuration file, with
// environment variables overriding AWS/provider settings: resolved once at
// startup, re-resolved on hot reload.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level assistant configuration.
type Config struct {
	AWS          AWSConfig          `yaml:"aws" json:"aws"`
	Transcribe   TranscribeConfig   `yaml:"transcribe" json:"transcribe"`
	Bedrock      BedrockConfig      `yaml:"bedrock" json:"bedrock"`
	Prompts      PromptsConfig      `yaml:"prompts" json:"prompts"`
	Conversation ConversationConfig `yaml:"conversation" json:"conversation"`
	Audio        AudioConfig        `yaml:"audio" json:"audio"`
}

type AWSConfig struct {
	Region string `yaml:"region" json:"region"`
}

type TranscribeConfig struct {
	Language     string   `yaml:"language" json:"language"`
	AltLanguages []string `yaml:"alt_languages" json:"alt_languages"`
}

type BedrockConfig struct {
	ModelID     string  `yaml:"model_id" json:"model_id"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopP        float64 `yaml:"top_p" json:"top_p"`
}

type PromptsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

type ConversationConfig struct {
	SummarizeAfterTurns int `yaml:"summarize_after_turns" json:"summarize_after_turns"`
}

type AudioConfig struct {
	ChunkBytes      int `yaml:"chunk_bytes" json:"chunk_bytes"`
	SampleRateHertz int `yaml:"sample_rate_hertz" json:"sample_rate_hertz"`
}

// defaults sets sane fallbacks before YAML unmarshal, so a sparse or
// absent config file still produces a usable Config.
func defaults() *Config {
	return &Config{
		AWS: AWSConfig{Region: "us-east-1"},
		Transcribe: TranscribeConfig{
			Language: "en-US",
		},
		Bedrock: BedrockConfig{
			ModelID:     "anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens:   1024,
			Temperature: 0.7,
			TopP:        0.9,
		},
		Prompts: PromptsConfig{Dir: "./prompts"},
		Conversation: ConversationConfig{
			SummarizeAfterTurns: 20,
		},
		Audio: AudioConfig{
			ChunkBytes:      3200,
			SampleRateHertz: 16000,
		},
	}
}

// Load reads path (if it exists; a missing file is not an error), then
// applies the AWS_* and PROMPTS_DIR environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			slog.Warn("config file not found, using defaults and environment", "path", path)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_TRANSCRIBE_LANGUAGE"); v != "" {
		cfg.Transcribe.Language = v
	}
	if v := os.Getenv("AWS_TRANSCRIBE_AUDIO_STREAM_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Audio.ChunkBytes = n
		}
	}
	if v := os.Getenv("AWS_BEDROCK_MODEL_NAME"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_BEDROCK_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bedrock.MaxTokens = n
		}
	}
	if v := os.Getenv("AWS_BEDROCK_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bedrock.Temperature = f
		}
	}
	if v := os.Getenv("AWS_BEDROCK_TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bedrock.TopP = f
		}
	}
	if v := os.Getenv("PROMPTS_DIR"); v != "" {
		cfg.Prompts.Dir = v
	}
}
