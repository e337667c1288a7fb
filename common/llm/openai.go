package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"basegraph.app/codeask/common/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const requestTimeout = 60 * time.Second

type openaiAnswerer struct {
	client openai.Client
	model  string
}

// New returns an Answerer backed by OpenAI chat completions.
// Calls are made once; failures are not retried.
func New(cfg Config) (Answerer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(requestTimeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &openaiAnswerer{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (a *openaiAnswerer) Answer(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	sc := logger.StartSpan(ctx, "llm.answer", trace.WithAttributes(
		attribute.String("model", a.model),
		attribute.String("file", req.FilePath),
	))
	defer sc.End()
	ctx = sc.Context()

	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(Instructions()),
			openai.UserMessage(BuildPrompt(req)),
		},
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		sc.RecordError(err)
		return "", fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "llm answer completed",
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	var text strings.Builder
	for _, choice := range resp.Choices {
		text.WriteString(choice.Message.Content)
	}

	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return EmptyAnswer, nil
	}
	return answer, nil
}

func (a *openaiAnswerer) Model() string {
	return a.model
}
