package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}, Role: genai.RoleModel},
		}},
	}
}

func TestGeminiBackendRequestsJSONMode(t *testing.T) {
	models := &fakeModels{resp: textResponse(`{"domain":"finance"}`)}
	b := NewGeminiBackend(models, GeminiConfig{Temperature: 0.1})

	out, err := b.Complete(context.Background(), Request{
		TemplateID: "classify",
		System:     "classify the problem",
		User:       "I overspend every month",
		Shape:      schema.ClassifyShape(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"domain":"finance"}`, out)

	assert.Equal(t, "gemini-2.5-flash", models.model)
	require.NotNil(t, models.config)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.NotNil(t, models.config.ResponseJsonSchema)
	assert.NotNil(t, models.config.SystemInstruction)
}

func TestGeminiBackendPlainCompletion(t *testing.T) {
	models := &fakeModels{resp: textResponse("All set.")}
	b := NewGeminiBackend(models, GeminiConfig{Model: "gemini-2.5-pro"})

	out, err := b.Complete(context.Background(), Request{User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "All set.", out)
	assert.Equal(t, "gemini-2.5-pro", models.model)
	assert.Empty(t, models.config.ResponseMIMEType)
	assert.Nil(t, models.config.SystemInstruction)
}

func TestGeminiBackendErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		limited   bool
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "quota"}, true, true},
		{"server error", genai.APIError{Code: 503, Message: "overloaded"}, true, false},
		{"bad request", genai.APIError{Code: 400, Message: "invalid"}, false, false},
		{"transport", errors.New("connection reset"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewGeminiBackend(&fakeModels{err: tt.err}, GeminiConfig{})
			_, err := b.Complete(context.Background(), Request{User: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))

			var limited *RateLimited
			assert.Equal(t, tt.limited, errors.As(err, &limited))
		})
	}
}

func TestGeminiBackendEmptyResponse(t *testing.T) {
	b := NewGeminiBackend(&fakeModels{resp: textResponse("")}, GeminiConfig{})
	_, err := b.Complete(context.Background(), Request{User: "x"})

	var unavailable *BackendUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "gemini", unavailable.Backend)
}

func TestGeminiBackendCallerCancellationIsPermanent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewGeminiBackend(&fakeModels{err: context.Canceled}, GeminiConfig{})
	_, err := b.Complete(ctx, Request{User: "x"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "")
	assert.Error(t, err)
}
