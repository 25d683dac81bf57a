package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessageCreator is the part of anthropic.MessageService the backend uses.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int64
	Timeout     time.Duration
}

// AnthropicBackend generates through the Anthropic Messages API. The API has
// no JSON response mode, so the shape's schema is appended to the system prompt.
type AnthropicBackend struct {
	messages    MessageCreator
	model       anthropic.Model
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

// NewAnthropicMessages creates the SDK message service for apiKey.
func NewAnthropicMessages(apiKey string) (MessageCreator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client.Messages, nil
}

// NewAnthropicBackend creates a backend over messages.
func NewAnthropicBackend(messages MessageCreator, cfg AnthropicConfig) *AnthropicBackend {
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &AnthropicBackend{
		messages:    messages,
		model:       model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	system := req.System
	if req.Shape != nil {
		system += "\n\nReturn a single JSON object matching this JSON schema and nothing else:\n" + req.Shape.JSONSchemaText()
	}

	params := anthropic.MessageNewParams{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: anthropic.Float(b.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := b.messages.New(ctx, params)
	if err != nil {
		return "", anthropicError(ctx, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &BackendUnavailable{Backend: b.Name(), Cause: errors.New("empty response")}
	}
	return sb.String(), nil
}

func anthropicError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("anthropic", apiErr.StatusCode, err)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return &BackendUnavailable{Backend: "anthropic", Permanent: true, Cause: err}
	}
	return &BackendUnavailable{Backend: "anthropic", Cause: err}
}
