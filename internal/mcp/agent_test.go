package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// scriptedModels returns one canned response per GenerateContent call.
type scriptedModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	err       error
	seen      [][]*genai.Content
	configs   []*genai.GenerateContentConfig
}

func (m *scriptedModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, append([]*genai.Content(nil), contents...))
	m.configs = append(m.configs, config)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return textResponse("out of script"), nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: text}}},
	}}}
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{
			FunctionCall: &genai.FunctionCall{ID: "call-1", Name: name, Args: args},
		}}},
	}}}
}

// fakeToolbox serves fixed tools and records calls.
type fakeToolbox struct {
	mu      sync.Mutex
	tools   []Tool
	results map[string]*CallResult
	err     error
	calls   []string
}

func (f *fakeToolbox) Tools(ctx context.Context) ([]Tool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

func (f *fakeToolbox) CallTool(ctx context.Context, id string, args map[string]any) (*CallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, errors.New("transport closed")
}

func calendarToolbox() *fakeToolbox {
	return &fakeToolbox{
		tools: []Tool{{
			ID:     "calendar__create_event",
			Server: "calendar",
			Schema: ToolSchema{
				Name:        "create_event",
				Description: "Creates a calendar event",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}}}`),
			},
		}},
		results: map[string]*CallResult{
			"calendar__create_event": {
				Success: true,
				Output:  json.RawMessage(`{"content":[{"type":"text","text":"event 42 created"}]}`),
			},
		},
	}
}

func TestToolAgentDeclaresDiscoveredTools(t *testing.T) {
	models := &scriptedModels{responses: []*genai.GenerateContentResponse{textResponse("done")}}
	agent, err := NewToolAgent(context.Background(), models, calendarToolbox(), AgentConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, agent.ToolCount())

	_, err = agent.Run(context.Background(), "hello")
	require.NoError(t, err)

	config := models.configs[0]
	require.Len(t, config.Tools, 1)
	decl := config.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, "calendar__create_event", decl.Name)
	assert.Equal(t, "Creates a calendar event", decl.Description)
	assert.Equal(t, map[string]any{
		"type":       "object",
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
	}, decl.ParametersJsonSchema)
}

func TestToolAgentRunsFunctionCallLoop(t *testing.T) {
	models := &scriptedModels{responses: []*genai.GenerateContentResponse{
		callResponse("calendar__create_event", map[string]any{"title": "Budget review"}),
		textResponse("  Scheduled the budget review.  "),
	}}
	tools := calendarToolbox()
	agent, err := NewToolAgent(context.Background(), models, tools, AgentConfig{MaxSteps: 5})
	require.NoError(t, err)

	answer, err := agent.Run(context.Background(), "schedule a budget review")
	require.NoError(t, err)
	assert.Equal(t, "Scheduled the budget review.", answer)
	assert.Equal(t, []string{"calendar__create_event"}, tools.calls)

	// second turn carries the model's call and the tool's response
	require.Len(t, models.seen, 2)
	second := models.seen[1]
	require.Len(t, second, 3)
	fr := second[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "calendar__create_event", fr.Name)
	assert.Equal(t, "call-1", fr.ID)
	assert.Equal(t, "event 42 created", fr.Response["output"])
}

func TestToolAgentReportsToolFailureToModel(t *testing.T) {
	models := &scriptedModels{responses: []*genai.GenerateContentResponse{
		callResponse("calendar__missing", nil),
		textResponse("I could not reach the calendar."),
	}}
	agent, err := NewToolAgent(context.Background(), models, calendarToolbox(), AgentConfig{})
	require.NoError(t, err)

	answer, err := agent.Run(context.Background(), "schedule it")
	require.NoError(t, err)
	assert.Equal(t, "I could not reach the calendar.", answer)

	fr := models.seen[1][2].Parts[0].FunctionResponse
	assert.Equal(t, "transport closed", fr.Response["error"])
}

func TestToolAgentStepBudget(t *testing.T) {
	loop := make([]*genai.GenerateContentResponse, 5)
	for i := range loop {
		loop[i] = callResponse("calendar__create_event", nil)
	}
	models := &scriptedModels{responses: loop}
	agent, err := NewToolAgent(context.Background(), models, calendarToolbox(), AgentConfig{MaxSteps: 3})
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
	assert.Len(t, models.seen, 3)
}

func TestToolAgentMapsBackendErrors(t *testing.T) {
	models := &scriptedModels{err: genai.APIError{Code: 429, Message: "quota"}}
	agent, err := NewToolAgent(context.Background(), models, calendarToolbox(), AgentConfig{})
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), "x")
	var limited *generation.RateLimited
	assert.ErrorAs(t, err, &limited)
}

func TestToolAgentDiscoveryFailure(t *testing.T) {
	_, err := NewToolAgent(context.Background(), &scriptedModels{}, &fakeToolbox{err: errors.New("boom")}, AgentConfig{})
	assert.Error(t, err)
}
