package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/christian-lee/callpilot/internal/callback"
	"github.com/christian-lee/callpilot/internal/config"
	"github.com/christian-lee/callpilot/internal/conversation"
	"github.com/christian-lee/callpilot/internal/llm"
	"github.com/christian-lee/callpilot/internal/prompt"
	"github.com/christian-lee/callpilot/internal/service"
	"github.com/christian-lee/callpilot/internal/stt"
	"github.com/christian-lee/callpilot/internal/transcript"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  assistant run [config]     Start the voice assistant")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cfgPath := "config.yaml"
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		if err := run(cfgPath); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

// run wires the Speech-to-Text adapter, the conversation store, the prompt
// engine, and the LLM adapter into one call: audio read from stdin (the
// microphone itself is a collaborator interface, out of scope here) flows
// through STT, each merged transcription becomes a USER turn, the prompt
// engine renders the system prompt for the model, and each completion
// becomes an ASSISTANT turn.
func run(cfgPath string) error {
	hotCfg, err := config.NewHotConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := hotCfg.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	scope := service.NewScope(ctx, "assistant")
	defer scope.Cancel()

	sttProvider := stt.NewAWSProvider(awsCfg, int32(cfg.Audio.SampleRateHertz))
	sttSvc := stt.NewService("call", sttProvider, scope)

	llmProvider := llm.NewBedrockProvider(awsCfg)
	llmSvc := llm.NewService("call", llmProvider, scope)

	store := conversation.New("call")

	docs, registry, err := loadPrompts(cfg.Prompts.Dir, store)
	if err != nil {
		slog.Warn("loading prompts", "err", err)
	}

	transcriptDir := filepath.Join(filepath.Dir(cfgPath), "transcripts")
	tlog, err := transcript.NewLogger(transcriptDir, "call")
	if err != nil {
		slog.Warn("transcript logger failed, continuing without", "err", err)
		tlog = nil
	} else {
		defer tlog.Close()
		slog.Info("transcript logging", "path", tlog.Path())
	}

	llmSvc.Responses().Add(func(in callback.Input) {
		resp := in.(llm.Response)
		if _, err := store.AppendAssistant([]string{resp.Message}); err != nil {
			slog.Error("append assistant turn", "err", err)
			return
		}
		if tlog != nil {
			tlog.WriteMessages(store.ExportIncremental(false))
		}
		fmt.Println(resp.Message)
	})

	sttSvc.Transcriptions().Add(func(in callback.Input) {
		t := in.(stt.Transcription)
		if strings.TrimSpace(t.Text) == "" {
			return
		}
		if _, err := store.AppendUser([]string{t.Text}); err != nil {
			slog.Error("append user turn", "err", err)
			return
		}
		if tlog != nil {
			tlog.WriteMessages(store.ExportIncremental(true))
		}

		req := buildRequest(docs, registry, store, cfg.Bedrock.ModelID)
		// The aggregator resets this watchdog on every streamed delta, so
		// the deadline bounds silence between chunks, not total latency.
		llmSvc.Core().ComputeAsync(req, service.Refreshable{
			Deadline:    15 * time.Second,
			CheckPeriod: time.Second,
			Callback:    func() { slog.Warn("llm stream stalled, stopped") },
		}, "call")
	})

	if !sttSvc.Core().Activate(ctx, "call") {
		return fmt.Errorf("activate stt service")
	}
	if !llmSvc.Core().Activate(ctx, "call") {
		return fmt.Errorf("activate llm service")
	}

	sttSvc.Core().ComputeAsync(stt.StreamInput{
		Audio:        os.Stdin,
		Language:     cfg.Transcribe.Language,
		AltLanguages: cfg.Transcribe.AltLanguages,
		ChunkBytes:   cfg.Audio.ChunkBytes,
	}, nil, "call")

	slog.Info("assistant started", "model", cfg.Bedrock.ModelID, "language", cfg.Transcribe.Language)

	<-ctx.Done()

	sttSvc.Core().Stop("call")
	llmSvc.Core().Stop("call")
	scope.Wait()

	return ctx.Err()
}

// buildRequest renders every loaded prompt document against the current
// conversation and turns the result into an LLM request, the user's LLM
// view supplying the running message history.
func buildRequest(docs []*prompt.Parsed, registry prompt.Registry, store *conversation.Store, modelName string) llm.Request {
	var prompts []string
	for _, doc := range docs {
		rendered := doc.ApplyVariables(registry)
		titles := make([]string, 0, len(doc.RawSections))
		for title := range doc.RawSections {
			titles = append(titles, title)
		}
		prompts = append(prompts, doc.FormatForLLM(rendered, titles, true, true))
	}

	view := store.LLMView()
	messages := make([]llm.Message, 0, len(view))
	for _, m := range view {
		role := llm.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Contents: m.Contents})
	}

	return llm.NewRequest(prompts, messages, modelName)
}

// loadPrompts parses every *.prompt file in dir against a registry of
// variable functions the prompt language can call, and starts watching dir
// so an edited template is reparsed and any parse error is logged. The
// returned documents are not replaced: a change takes effect only after a
// restart.
func loadPrompts(dir string, store *conversation.Store) ([]*prompt.Parsed, prompt.Registry, error) {
	registry := prompt.Registry{
		"now": func() string { return time.Now().Format(time.RFC3339) },
		"conversation_summary": func() string {
			window := store.GetSummaryInfo()
			if window.PriorSummary == nil {
				return ""
			}
			return strings.Join(window.PriorSummary.Contents, " ")
		},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, registry, fmt.Errorf("read prompts dir: %w", err)
	}

	var docs []*prompt.Parsed
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".prompt") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("read prompt file", "path", path, "err", err)
			continue
		}
		doc, err := prompt.Parse(string(data), registry)
		if err != nil {
			slog.Error("parse prompt file", "path", path, "err", err)
			continue
		}
		docs = append(docs, doc)
	}

	watcher := config.NewPromptWatcher(dir, func(path string) {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("reload prompt file", "path", path, "err", err)
			return
		}
		if _, err := prompt.Parse(string(data), registry); err != nil {
			slog.Error("reparse prompt file", "path", path, "err", err)
			return
		}
		slog.Info("prompt file reparsed cleanly; restart to pick up changes", "path", path)
	})
	watcher.Watch()

	return docs, registry, nil
}
