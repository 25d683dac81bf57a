package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// ContentGenerator is the part of *genai.Models the service uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// GeminiBackend generates through Google's Gemini API. Structured requests
// use the JSON response mode with the shape's schema.
type GeminiBackend struct {
	models      ContentGenerator
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiClient creates the SDK client shared by generation and the tool agent.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// NewGeminiBackend creates a backend over models (usually client.Models).
func NewGeminiBackend(models ContentGenerator, cfg GeminiConfig) *GeminiBackend {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	return &GeminiBackend{
		models:      models,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(b.temperature),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Shape != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = req.Shape.JSONSchema()
	}

	contents := []*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}

	resp, err := b.models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", GeminiError(ctx, err)
	}
	text := resp.Text()
	if text == "" {
		return "", &BackendUnavailable{Backend: b.Name(), Cause: errors.New("empty response")}
	}
	return text, nil
}

// GeminiError maps SDK and context errors onto the port's taxonomy.
func GeminiError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus("gemini", apiErrPtr.Code, err)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return &BackendUnavailable{Backend: "gemini", Permanent: true, Cause: err}
	}
	return &BackendUnavailable{Backend: "gemini", Cause: err}
}
